// Package catalog serves the descriptors of feature pages registered
// into the shared shell.
package catalog

import (
	"net/http"

	"github.com/gorilla/mux"

	"flashmvp/internal/models"
	"flashmvp/internal/utils"
)

type Feature struct {
	descriptors []models.FeatureDescriptor
}

// New builds the catalog feature. The descriptor slice is normalized
// to non-nil so the endpoint encodes [] instead of null.
func New(descriptors []models.FeatureDescriptor) *Feature {
	if descriptors == nil {
		descriptors = []models.FeatureDescriptor{}
	}
	return &Feature{descriptors: descriptors}
}

func (f *Feature) Name() string   { return "catalog" }
func (f *Feature) Prefix() string { return "catalog" }

func (f *Feature) Mount(r *mux.Router) {
	r.HandleFunc("/features", f.handleFeatures).Methods(http.MethodGet)
}

func (f *Feature) handleFeatures(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithJSON(w, http.StatusOK, f.descriptors)
}
