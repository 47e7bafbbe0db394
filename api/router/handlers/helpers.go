package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/iluobei/miaomiaowu-sub001/models"
)

// notImplementedHandler returns a 501 Not Implemented error.
func notImplementedHandler(w http.ResponseWriter, r *http.Request) {
	errMsg := fmt.Sprintf("%s %s - Not Implemented Yet (relative path within API router)", r.Method, r.URL.Path)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotImplemented)
	json.NewEncoder(w).Encode(models.ErrorResponse{Message: errMsg})
}
