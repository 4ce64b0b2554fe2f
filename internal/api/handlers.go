package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"fieldnote/internal/domain"
)

// messageSummary is one grouped entry in the /files/ids response: all
// artifacts written for one inbound message.
type messageSummary struct {
	MessageID string   `json:"message_id"`
	Tag       string   `json:"tag"`
	FileCount int      `json:"file_count"`
	Files     []string `json:"files"`
}

// messageDetail is the /messages/{id} response: the artifacts of one
// message, found under whichever intent it was classified as.
type messageDetail struct {
	MessageID string              `json:"message_id"`
	Intent    domain.Intent       `json:"intent"`
	Tag       string              `json:"tag"`
	Files     []domain.ObjectInfo `json:"files"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleFilesList is a thin pass-through to the store's paginated listing.
func (s *Server) handleFilesList(w http.ResponseWriter, r *http.Request) {
	companyID, intent, ok := s.tenantScope(w, r)
	if !ok {
		return
	}

	page, err := s.lister.List(r.Context(), domain.IntentPrefix(companyID, intent), r.URL.Query().Get("nextContinuationToken"))
	if err != nil {
		s.serverError(w, r, "list files", err)
		return
	}
	if page.Objects == nil {
		page.Objects = []domain.ObjectInfo{}
	}
	writeJSON(w, http.StatusOK, page)
}

// handleFilesIDs groups a tenant's artifacts by message, so a client can
// show one row per inbound message instead of one per stored object.
func (s *Server) handleFilesIDs(w http.ResponseWriter, r *http.Request) {
	companyID, intent, ok := s.tenantScope(w, r)
	if !ok {
		return
	}

	objects, err := s.listAll(r, domain.IntentPrefix(companyID, intent))
	if err != nil {
		s.serverError(w, r, "list files", err)
		return
	}

	groups := make(map[string]*messageSummary)
	for _, obj := range objects {
		ref, err := domain.ParseArtifactKey(obj.Key)
		if err != nil {
			// Foreign objects under the prefix are skipped, not fatal.
			s.logger.Warn("skipping unparseable key", "key", obj.Key, "request_id", RequestIDFrom(r.Context()))
			continue
		}
		g, exists := groups[ref.MessageID]
		if !exists {
			g = &messageSummary{MessageID: ref.MessageID, Tag: ref.Tag}
			groups[ref.MessageID] = g
		}
		g.Files = append(g.Files, obj.Key)
		g.FileCount = len(g.Files)
	}

	summaries := make([]messageSummary, 0, len(groups))
	for _, g := range groups {
		sort.Strings(g.Files)
		summaries = append(summaries, *g)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].MessageID < summaries[j].MessageID })

	writeJSON(w, http.StatusOK, map[string]any{"messages": summaries})
}

// handleMessage finds one message's artifacts. The intent is not part of
// the request: the key scheme shards by intent, so all intent prefixes are
// searched until the message turns up.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	messageID := r.PathValue("id")
	companyID := r.URL.Query().Get("company_id")
	if companyID == "" {
		writeError(w, http.StatusBadRequest, "company_id is required")
		return
	}

	for _, intent := range domain.Intents {
		objects, err := s.listAll(r, domain.IntentPrefix(companyID, intent))
		if err != nil {
			s.serverError(w, r, "list files", err)
			return
		}

		detail := messageDetail{MessageID: messageID, Intent: intent, Files: []domain.ObjectInfo{}}
		for _, obj := range objects {
			ref, err := domain.ParseArtifactKey(obj.Key)
			if err != nil || ref.MessageID != messageID {
				continue
			}
			detail.Tag = ref.Tag
			detail.Files = append(detail.Files, obj)
		}
		if len(detail.Files) > 0 {
			writeJSON(w, http.StatusOK, detail)
			return
		}
	}

	writeError(w, http.StatusNotFound, fmt.Sprintf("no artifacts for message %s", messageID))
}

func (s *Server) handleDownloadURL(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}

	url, err := s.lister.Presign(r.Context(), key, s.cfg.PresignExpiry)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("file not found: %s", key))
			return
		}
		s.serverError(w, r, "presign", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// tenantScope validates the company_id and message_intent query parameters
// shared by the listing endpoints.
func (s *Server) tenantScope(w http.ResponseWriter, r *http.Request) (string, domain.Intent, bool) {
	companyID := r.URL.Query().Get("company_id")
	if companyID == "" {
		writeError(w, http.StatusBadRequest, "company_id is required")
		return "", "", false
	}
	intent, err := domain.ParseIntent(r.URL.Query().Get("message_intent"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid message_intent, must be one of %v", domain.Intents))
		return "", "", false
	}
	return companyID, intent, true
}

// listAll drains the paginated listing for a prefix. Grouping endpoints
// need the complete set; tenants are small enough that this stays cheap.
func (s *Server) listAll(r *http.Request, prefix string) ([]domain.ObjectInfo, error) {
	var objects []domain.ObjectInfo
	token := ""
	for {
		page, err := s.lister.List(r.Context(), prefix, token)
		if err != nil {
			return nil, err
		}
		objects = append(objects, page.Objects...)
		if page.NextToken == "" {
			return objects, nil
		}
		token = page.NextToken
	}
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.logger.Error(op+" failed",
		"error", err,
		"code", domain.ErrorCodeOf(err),
		"request_id", RequestIDFrom(r.Context()),
	)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
