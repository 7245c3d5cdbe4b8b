package handlers

import (
	"net/http"
	"strconv"

	"github.com/vidstream/backend/internal/models"
)

// pageRequest reads page and limit query parameters. Missing or non-numeric values are
// left zero so services apply their defaults.
func pageRequest(r *http.Request) models.PageRequest {
	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	limit, _ := strconv.Atoi(query.Get("limit"))
	return models.PageRequest{Page: page, Limit: limit}
}
