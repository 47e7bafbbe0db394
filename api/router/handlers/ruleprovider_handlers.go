package handlers

import (
	"net/http"
)

// ListRuleProvidersHandler is a placeholder for listing remote rule providers.
// @Summary List rule providers
// @Description (Not Implemented Yet) Lists the remote rule-set providers referenced by stored documents, with their fetch state.
// @Tags RuleProviders
// @Produce json
// @Success 501 {object} models.ErrorResponse "Not Implemented Yet"
// @Router /rule-providers [get]
func ListRuleProvidersHandler(w http.ResponseWriter, r *http.Request) { notImplementedHandler(w, r) }

// RefreshRuleProviderHandler is a placeholder for refreshing one rule provider.
// @Summary Refresh a rule provider
// @Description (Not Implemented Yet) Re-downloads a remote rule-set and reports how many rules it now carries.
// @Tags RuleProviders
// @Produce json
// @Param name path string true "Rule provider name"
// @Success 501 {object} models.ErrorResponse "Not Implemented Yet"
// @Router /rule-providers/{name}/refresh [post]
func RefreshRuleProviderHandler(w http.ResponseWriter, r *http.Request) { notImplementedHandler(w, r) }
