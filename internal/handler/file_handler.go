package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"artreview/internal/domain"
	"artreview/internal/service"
)

const multipartMemory = 32 << 20

type createArtRequest struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	ProjectID string `json:"projectId"`
}

type fileView struct {
	domain.ArtFile
	URL string `json:"url,omitempty"`
}

type versionView struct {
	*domain.ArtVersion
	Files []fileView `json:"files"`
}

func (h *Handler) CreateArt(w http.ResponseWriter, r *http.Request) {
	user, err := h.internalUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req createArtRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	art, err := h.ledger.CreateArt(r.Context(), req.Name, req.Kind, req.ProjectID, user.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, art)
}

// readUpload reads the multipart "file" part, rejecting bodies above limit.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request, limit int64) (data []byte, filename, contentType string, err error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", "", domain.Validationf("upload exceeds %d bytes", limit)
		}
		return nil, "", "", domain.Validationf("failed to parse form: %v", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", "", domain.Validationf("file is required")
	}
	defer file.Close()

	data, err = io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, "", "", domain.Validationf("failed to read upload: %v", err)
	}
	if int64(len(data)) > limit {
		return nil, "", "", domain.Validationf("upload exceeds %d bytes", limit)
	}
	return data, header.Filename, header.Header.Get("Content-Type"), nil
}

func (h *Handler) UploadVersion(w http.ResponseWriter, r *http.Request) {
	if _, err := h.internalUser(r); err != nil {
		h.fail(w, r, err)
		return
	}
	artID, err := uuidParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	data, filename, _, err := h.readUpload(w, r, h.opts.MaxUploadBytes)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	v, err := h.ingestion.Upload(r.Context(), service.UploadInput{
		ArtID:          artID,
		Filename:       filename,
		Data:           data,
		ReadyForReview: parseBool(r.FormValue("ready_for_review")),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *Handler) AttachAudio(w http.ResponseWriter, r *http.Request) {
	artID, err := uuidParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	n, err := versionParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.access(r, artID, domain.ActionComment); err != nil {
		h.fail(w, r, err)
		return
	}

	data, filename, contentType, err := h.readUpload(w, r, h.opts.MaxUploadBytes)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	file, err := h.ingestion.AttachAudio(r.Context(), service.AttachmentInput{
		ArtID:         artID,
		VersionNumber: n,
		Filename:      filename,
		ContentType:   contentType,
		Data:          data,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, file)
}

func (h *Handler) ListVersions(w http.ResponseWriter, r *http.Request) {
	artID, err := uuidParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.access(r, artID, domain.ActionView); err != nil {
		h.fail(w, r, err)
		return
	}

	versions, err := h.ledger.ListVersions(r.Context(), artID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

func (h *Handler) GetCurrentVersion(w http.ResponseWriter, r *http.Request) {
	h.getVersion(w, r, nil)
}

func (h *Handler) GetVersion(w http.ResponseWriter, r *http.Request) {
	n, err := versionParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.getVersion(w, r, &n)
}

func (h *Handler) getVersion(w http.ResponseWriter, r *http.Request, n *int) {
	artID, err := uuidParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	capability, err := h.access(r, artID, domain.ActionView)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	v, err := h.ledger.GetVersion(r.Context(), artID, n)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	view, err := h.versionView(r.Context(), v, capability)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// versionView signs a URL for every file the caller may fetch. Guests only get
// the original source when their link allows downloads. Previews use the public
// base URL when one is configured.
func (h *Handler) versionView(ctx context.Context, v *domain.ArtVersion, capability *domain.Capability) (*versionView, error) {
	files, err := h.ledger.Files(ctx, v.ID)
	if err != nil {
		return nil, err
	}

	view := &versionView{ArtVersion: v, Files: make([]fileView, 0, len(files))}
	for _, f := range files {
		fv := fileView{ArtFile: f}
		switch {
		case f.Kind == domain.FilePreview && h.blobs.PublicURL(f.Path) != "":
			fv.URL = h.blobs.PublicURL(f.Path)
		case f.Kind != domain.FileSource || capability == nil || capability.Allows(domain.ActionDownload):
			fv.URL, err = h.blobs.SignedURL(ctx, f.Path, h.opts.SignedURLTTL)
			if err != nil {
				return nil, err
			}
		}
		view.Files = append(view.Files, fv)
	}
	return view, nil
}

// sharedResponse is what a guest sees when opening a share link.
type sharedResponse struct {
	Art        *domain.Art       `json:"art"`
	Version    *versionView      `json:"current_version,omitempty"`
	Capability domain.Capability `json:"capability"`
}

func (h *Handler) GetShared(w http.ResponseWriter, r *http.Request) {
	link, capability, err := h.gate.Resolve(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	art, err := h.ledger.GetArt(r.Context(), link.SubjectID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := sharedResponse{Art: art, Capability: capability}

	v, err := h.ledger.GetVersion(r.Context(), art.ID, nil)
	switch {
	case err == nil:
		resp.Version, err = h.versionView(r.Context(), v, &capability)
		if err != nil {
			h.fail(w, r, err)
			return
		}
	case !errors.Is(err, domain.ErrNotFound):
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
