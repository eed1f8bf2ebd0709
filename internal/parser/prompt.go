package parser

// systemPrompt frames every extraction request.
const systemPrompt = `You are a medical document parser. You extract structured order data from the text of medical order documents and reply with a single JSON object and nothing else.`

// BuildOrderPrompt returns the extraction prompt for a medical order document.
// The output is a pure function of the document text.
func BuildOrderPrompt(documentText string) string {
	return `Extract the following information from this medical order document and return it as valid JSON.

IMPORTANT INSTRUCTIONS:
- Use null for any value that is not present in the document. Never invent values.
- Identifiers (medical record number, NPI, SKU) must be copied exactly as written. If an identifier is not in the document, use null. Do not use placeholders such as "0000000000".
- Ages and quantities are whole numbers.
- Costs are written amounts exactly as they appear (for example "$1,250.00"), or null.
- confidence_score is your confidence in the overall extraction, between 0 and 1.

Fields:
- patient.medical_record_number (string or null): Patient's MRN or medical record number
- patient.first_name (string): Patient's first name
- patient.last_name (string): Patient's last name
- patient.age (number or null): Patient's age in years
- prescriber.first_name (string): Prescriber's first name
- prescriber.last_name (string): Prescriber's last name
- prescriber.npi (string or null): 10-digit National Provider Identifier
- prescriber.phone_number, prescriber.email, prescriber.clinic_name, prescriber.clinic_address (string or null)
- devices (array): every device or item ordered, each with name (string), sku (string or null) and quantity (number, default 1)
- order.item_name (string or null): primary item name
- order.item_quantity (number or null): total quantity
- order.order_cost_raw (string or null): total cost of the order
- order.order_cost_to_insurer (string or null): amount billed to the insurer
- order.reason_prescribed (string or null): reason for the order or diagnosis

Return ONLY valid JSON with no markdown formatting, no code fences, no explanation, in exactly this shape:
{
  "patient": {
    "medical_record_number": null,
    "first_name": "",
    "last_name": "",
    "age": null
  },
  "prescriber": {
    "first_name": "",
    "last_name": "",
    "npi": null,
    "phone_number": null,
    "email": null,
    "clinic_name": null,
    "clinic_address": null
  },
  "devices": [
    {"name": "", "sku": null, "quantity": 1}
  ],
  "order": {
    "item_name": null,
    "item_quantity": null,
    "order_cost_raw": null,
    "order_cost_to_insurer": null,
    "reason_prescribed": null
  },
  "confidence_score": null
}

Document content:
` + documentText + `

JSON output:`
}
