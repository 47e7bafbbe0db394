package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterEditSessionRoutes registers the edit-session operation routes.
// Sessions are opened through POST /config-files/{id}/edit.
func RegisterEditSessionRoutes(r chi.Router) {
	r.Route("/edit-sessions/{sessionID}", func(subRouter chi.Router) {
		withSessionID := func(h func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
			return func(w http.ResponseWriter, req *http.Request) {
				sessionID := chi.URLParam(req, "sessionID")
				if sessionID == "" {
					http.Error(w, "Missing session ID", http.StatusBadRequest)
					return
				}
				h(w, req, sessionID)
			}
		}

		subRouter.Get("/", withSessionID(DescribeEditSessionHandler))
		subRouter.Get("/document", withSessionID(GetEditSessionDocumentHandler))
		subRouter.Get("/validate", withSessionID(ValidateEditSessionHandler))

		subRouter.Post("/rename-group", withSessionID(RenameGroupHandler))
		subRouter.Post("/remove-group", withSessionID(RemoveGroupHandler))
		subRouter.Post("/remove-member", withSessionID(RemoveMemberHandler))
		subRouter.Post("/move-member", withSessionID(MoveMemberHandler))
		subRouter.Post("/move-group", withSessionID(MoveGroupHandler))
		subRouter.Post("/add-group", withSessionID(AddGroupHandler))
		subRouter.Post("/add-member", withSessionID(AddMemberHandler))
		subRouter.Post("/replace-unresolved", withSessionID(ReplaceUnresolvedHandler))
		subRouter.Post("/save", withSessionID(SaveEditSessionHandler))

		subRouter.Delete("/", withSessionID(DiscardEditSessionHandler))
	})
}
