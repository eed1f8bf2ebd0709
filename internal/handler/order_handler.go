package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"medorders/internal/domain"
	"medorders/internal/export"
	"medorders/internal/middleware"
	"medorders/internal/service"
)

const exportBatchSize = 100

// OrderHandler handles PDF intake and order endpoints.
type OrderHandler struct {
	intake         service.IntakeService
	orders         service.OrderService
	maxUploadBytes int64
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(intake service.IntakeService, orders service.OrderService, maxUploadBytes int64) *OrderHandler {
	return &OrderHandler{intake: intake, orders: orders, maxUploadBytes: maxUploadBytes}
}

// ParsePDFPreview handles POST /api/v1/orders/parse-pdf-preview
func (h *OrderHandler) ParsePDFPreview(c *gin.Context) {
	doc, ok := h.readUpload(c)
	if !ok {
		return
	}
	result, err := h.intake.Preview(c.Request.Context(), doc)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, result)
}

// ParsePDF handles POST /api/v1/orders/parse-pdf
func (h *OrderHandler) ParsePDF(c *gin.Context) {
	doc, ok := h.readUpload(c)
	if !ok {
		return
	}
	result, err := h.intake.Ingest(c.Request.Context(), doc)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondCreated(c, result)
}

// createOrderRequest accepts either a direct order (ids or nested parties)
// or a reviewed preview under "parsed".
type createOrderRequest struct {
	Parsed *domain.ParsedOrderData `json:"parsed"`

	PatientID          *int64                   `json:"patient_id"`
	Patient            *domain.ParsedPatient    `json:"patient"`
	PrescriberID       *int64                   `json:"prescriber_id"`
	Prescriber         *domain.ParsedPrescriber `json:"prescriber"`
	DeviceIDs          []service.OrderDeviceRef `json:"device_ids"`
	Devices            []domain.ParsedDevice    `json:"devices"`
	ItemName           *string                  `json:"item_name"`
	ItemQuantity       *int                     `json:"item_quantity"`
	OrderCostRaw       *int64                   `json:"order_cost_raw"`
	OrderCostToInsurer *int64                   `json:"order_cost_to_insurer"`
	ReasonPrescribed   *string                  `json:"reason_prescribed"`
}

// Create handles POST /api/v1/orders
func (h *OrderHandler) Create(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "request body must be a JSON order")
		return
	}

	var (
		result *domain.OrderPersistResult
		err    error
	)
	if req.Parsed != nil {
		result, err = h.orders.Persist(c.Request.Context(), req.Parsed)
	} else {
		result, err = h.orders.Create(c.Request.Context(), &service.CreateOrderInput{
			PatientID:          req.PatientID,
			Patient:            req.Patient,
			PrescriberID:       req.PrescriberID,
			Prescriber:         req.Prescriber,
			DeviceIDs:          req.DeviceIDs,
			Devices:            req.Devices,
			ItemName:           req.ItemName,
			ItemQuantity:       req.ItemQuantity,
			OrderCostRaw:       req.OrderCostRaw,
			OrderCostToInsurer: req.OrderCostToInsurer,
			ReasonPrescribed:   req.ReasonPrescribed,
		})
	}
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondCreated(c, result)
}

// GetByID handles GET /api/v1/orders/:id
func (h *OrderHandler) GetByID(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid order ID")
		return
	}
	order, err := h.orders.GetByID(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, order)
}

// List handles GET /api/v1/orders
func (h *OrderHandler) List(c *gin.Context) {
	offset, limit := parsePagination(c)
	orders, total, err := h.orders.List(c.Request.Context(), offset, limit)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondPaginated(c, orders, PagMeta{Total: total, Offset: offset, Limit: limit})
}

// Export handles GET /api/v1/orders/export?format=csv|xlsx
func (h *OrderHandler) Export(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_FORMAT", "format must be csv or xlsx")
		return
	}
	ctx := c.Request.Context()

	// Fetch the first batch before committing to a 200.
	first, total, err := h.orders.List(ctx, 0, exportBatchSize)
	if err != nil {
		HandleError(c, err)
		return
	}
	next := func(offset int) ([]domain.Order, error) {
		if offset == 0 {
			return first, nil
		}
		batch, _, err := h.orders.List(ctx, offset, exportBatchSize)
		return batch, err
	}

	filename := export.BuildFilename(c.DefaultQuery("name", "orders"), format, time.Now())
	startDownload := func() {
		c.Header("Content-Type", format.ContentType())
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
		c.Status(http.StatusOK)
	}
	log := middleware.GetLogger(c)

	switch format {
	case export.FormatXLSX:
		w, err := export.NewXLSXWriter()
		if err != nil {
			HandleError(c, err)
			return
		}
		defer func() { _ = w.Close() }()
		if err := w.WriteHeader(); err != nil {
			HandleError(c, err)
			return
		}
		if err := eachBatch(total, next, w.WriteOrders); err != nil {
			HandleError(c, err)
			return
		}
		startDownload()
		if _, err := w.WriteTo(c.Writer); err != nil {
			log.Error().Err(err).Msg("orderHandler.Export: xlsx write failed")
		}
	default:
		startDownload()
		_, _ = c.Writer.Write(export.BOM)
		w := export.NewCSVWriter(c.Writer)
		if err := w.WriteHeader(); err != nil {
			log.Error().Err(err).Msg("orderHandler.Export: header write failed")
			return
		}
		if err := eachBatch(total, next, w.WriteOrders); err != nil {
			// Headers are already sent; the truncated body is all we can do.
			log.Error().Err(err).Msg("orderHandler.Export: csv write failed")
		}
		w.Flush()
	}
}

func eachBatch(total int, next func(offset int) ([]domain.Order, error), write func([]domain.Order) error) error {
	for offset := 0; offset < total; offset += exportBatchSize {
		batch, err := next(offset)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		if err := write(batch); err != nil {
			return err
		}
	}
	return nil
}

// readUpload reads the multipart "file" field into a RawDocument. On
// failure the error response is already written.
func (h *OrderHandler) readUpload(c *gin.Context) (domain.RawDocument, bool) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+(1<<20))
	}
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			HandleError(c, domain.ErrFileTooLarge)
			return domain.RawDocument{}, false
		}
		RespondError(c, http.StatusBadRequest, "MISSING_FILE", "file field is required")
		return domain.RawDocument{}, false
	}
	defer func() { _ = file.Close() }()

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(header.Filename)), ".")
	if _, ok := domain.AllowedExtensions[ext]; !ok {
		HandleError(c, domain.ErrUnsupportedFileType)
		return domain.RawDocument{}, false
	}
	if h.maxUploadBytes > 0 && header.Size > h.maxUploadBytes {
		HandleError(c, domain.ErrFileTooLarge)
		return domain.RawDocument{}, false
	}

	data, err := io.ReadAll(file)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "UNREADABLE_UPLOAD", "failed to read uploaded file")
		return domain.RawDocument{}, false
	}
	return domain.RawDocument{
		Filename:  header.Filename,
		MediaType: header.Header.Get("Content-Type"),
		Bytes:     data,
	}, true
}
