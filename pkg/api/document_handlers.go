package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/vendorgate/vendorgate/pkg/audit"
	"github.com/vendorgate/vendorgate/pkg/httputil"
	"github.com/vendorgate/vendorgate/pkg/policy"
	"github.com/vendorgate/vendorgate/pkg/resources"
	"github.com/vendorgate/vendorgate/pkg/webhooks"
)

// DocumentHandlers exposes tenant-scoped document CRUD with file storage
type DocumentHandlers struct {
	docs      *resources.DocumentService
	pipeline  *policy.Pipeline
	emitter   *eventEmitter
	maxUpload int64
}

// NewDocumentHandlers creates the document handler group
func NewDocumentHandlers(docs *resources.DocumentService, pipeline *policy.Pipeline, emitter *eventEmitter, maxUpload int64) *DocumentHandlers {
	return &DocumentHandlers{docs: docs, pipeline: pipeline, emitter: emitter, maxUpload: maxUpload}
}

// RegisterRoutes registers the document routes on the protected router
func (h *DocumentHandlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/documents", h.Upload).Methods("POST")
	r.HandleFunc("/documents", h.List).Methods("GET")
	r.HandleFunc("/documents/{id:[0-9]+}", h.Get).Methods("GET")
	r.HandleFunc("/documents/{id:[0-9]+}", h.Update).Methods("PATCH")
	r.HandleFunc("/documents/{id:[0-9]+}", h.Delete).Methods("DELETE")
	r.HandleFunc("/documents/{id:[0-9]+}/download", h.Download).Methods("GET")
}

// Upload accepts a multipart document upload. Oversized requests are
// rejected from the declared Content-Length before the body is read; the
// object store enforces its own limit for chunked requests.
func (h *DocumentHandlers) Upload(w http.ResponseWriter, r *http.Request) {
	id := policy.IdentityFromContext(r.Context())

	if h.maxUpload > 0 && r.ContentLength > h.maxUpload {
		httputil.WriteErrorCode(w, r, httputil.CodePayloadTooLarge, "upload exceeds the maximum allowed size")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteValidationError(w, r, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	title := r.FormValue("title")
	if title == "" {
		title = header.Filename
	}

	doc := &resources.Document{
		TenantID:       id.TenantID,
		OrganizationID: id.OrganizationID,
		CreatedBy:      id.ID,
		Title:          title,
		FileName:       header.Filename,
		ContentType:    header.Header.Get("Content-Type"),
		SizeBytes:      header.Size,
		Shared:         r.FormValue("shared") == "true",
	}
	if raw := r.FormValue("vendor_id"); raw != "" {
		vendorID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httputil.WriteValidationError(w, r, "vendor_id must be an integer")
			return
		}
		doc.VendorID = &vendorID
	}

	if err := h.docs.Create(r.Context(), doc, file); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	event := audit.NewEvent(r.Context(), audit.EventTypeDataDocumentCreate, audit.EventStatusSuccess)
	event.UserID = &id.ID
	event.TenantID = &id.TenantID
	h.emitter.record(r, event)
	h.emitter.emit(r, id.TenantID, webhooks.EventDocumentCreated, map[string]interface{}{
		"document_id":     doc.ID,
		"organization_id": doc.OrganizationID,
		"title":           doc.Title,
	})

	httputil.WriteCreated(w, r, doc)
}

// List returns the documents visible to the caller under the role
// visibility predicates.
func (h *DocumentHandlers) List(w http.ResponseWriter, r *http.Request) {
	id := policy.IdentityFromContext(r.Context())

	p, err := httputil.ParsePagination(r, 50, 200)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	docs, err := h.docs.ListVisible(r.Context(), id, p)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, r, docs)
}

// Get returns one document after the ownership read predicate passes
func (h *DocumentHandlers) Get(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.load(w, r, false)
	if !ok {
		return
	}
	httputil.WriteSuccess(w, r, doc)
}

type documentUpdateRequest struct {
	Title    *string `json:"title,omitempty"`
	Shared   *bool   `json:"shared,omitempty"`
	VendorID *int64  `json:"vendor_id,omitempty"`
}

// Update modifies document metadata; the stored file is immutable
func (h *DocumentHandlers) Update(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.load(w, r, true)
	if !ok {
		return
	}

	var req documentUpdateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if req.Title != nil {
		doc.Title = *req.Title
	}
	if req.Shared != nil {
		doc.Shared = *req.Shared
	}
	if req.VendorID != nil {
		doc.VendorID = req.VendorID
	}

	if err := h.docs.Update(r.Context(), doc); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	id := policy.IdentityFromContext(r.Context())
	h.emitter.emit(r, doc.TenantID, webhooks.EventDocumentUpdated, map[string]interface{}{
		"document_id": doc.ID,
		"updated_by":  id.ID,
	})
	httputil.WriteSuccess(w, r, doc)
}

// Delete removes the document record and its stored file
func (h *DocumentHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.load(w, r, true)
	if !ok {
		return
	}

	if err := h.docs.Delete(r.Context(), doc); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	id := policy.IdentityFromContext(r.Context())
	event := audit.NewEvent(r.Context(), audit.EventTypeDataDocumentDelete, audit.EventStatusSuccess)
	event.UserID = &id.ID
	event.TenantID = &id.TenantID
	h.emitter.record(r, event)
	h.emitter.emit(r, doc.TenantID, webhooks.EventDocumentDeleted, map[string]interface{}{
		"document_id": doc.ID,
		"deleted_by":  id.ID,
	})

	httputil.WriteNoContent(w)
}

// Download returns a short-lived signed URL for the stored file
func (h *DocumentHandlers) Download(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.load(w, r, false)
	if !ok {
		return
	}

	url, err := h.docs.DownloadURL(r.Context(), doc)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, r, map[string]string{"url": url})
}

// load fetches the document from the caller's tenant and applies the
// ownership predicate. On failure the response has been written.
func (h *DocumentHandlers) load(w http.ResponseWriter, r *http.Request, write bool) (*resources.Document, bool) {
	id := policy.IdentityFromContext(r.Context())

	docID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return nil, false
	}

	doc, err := h.docs.Get(r.Context(), id.TenantID, docID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return nil, false
	}

	if err := h.pipeline.Authorize(w, r, doc.PolicyResource(), write); err != nil {
		return nil, false
	}
	return doc, true
}
