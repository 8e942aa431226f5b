package httpapi

import (
	"errors"
	"net/http"

	"quackquery/internal/domain"
	"quackquery/internal/releases"
)

func (a *api) handleDownload(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	p, err := releases.ParsePlatform(r.URL.Query().Get("platform"))
	if err != nil {
		WriteDomainError(w, domain.NewValidationError(map[string]string{"platform": "must be windows, mac or linux"}))
		return
	}

	url, err := a.downloadSvc.DownloadURL(r.Context(), u, p)
	if err != nil {
		if errors.Is(err, releases.ErrAssetNotFound) {
			WriteError(w, http.StatusNotFound, "asset_not_found", "no release for platform")
			return
		}
		a.fail(w, r, "download: resolve url failed", err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, url, http.StatusFound)
}
