package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/rfp-matcher/internal/logger"
	"github.com/spigell/rfp-matcher/internal/rfp"
)

const maxBodyBytes = 1 << 20

type handlers struct {
	deps Deps
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type analyzeRequest struct {
	Text string `json:"text"`
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) matchRFPs(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	limit := h.deps.MatchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}

	matches := h.deps.Matcher.FindMatches(r.Context(), userID, limit)
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

func (h *handlers) scrapeRFPs(w http.ResponseWriter, r *http.Request) {
	token, ok := bearer(r.Header.Get("Authorization"))
	if !ok || h.deps.CronSecret == "" || token != h.deps.CronSecret {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Unauthorized"})
		return
	}

	saved, err := h.deps.Scraper.Run(r.Context())
	if err != nil {
		h.deps.Logger.Error("scraping failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Scraping failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Scraped and saved %d RFPs", saved.Len()),
	})
}

func (h *handlers) analyzeProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	var req analyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "text required"})
		return
	}

	log := h.deps.Logger.With(zap.String(logger.FieldUserID, userID), zap.String("context", "capability_analysis"))
	hash := rfp.StatementHash(req.Text)

	existing, err := h.analyzedProfile(r.Context(), userID, hash)
	if err != nil {
		log.Error("profile analysis failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Analysis failed", Details: err.Error()})
		return
	}
	if existing != nil {
		log.Info("statement already analyzed", zap.String("statement_hash", hash))
		writeJSON(w, http.StatusOK, map[string]any{"profile": existing})
		return
	}

	profile, err := h.deps.Analyzer.Analyze(r.Context(), req.Text)
	if err != nil {
		log.Error("profile analysis failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Analysis failed", Details: err.Error()})
		return
	}
	profile.UserID = userID
	profile.StatementHash = hash

	doc, err := profile.Document()
	if err == nil {
		err = h.deps.Profiles.PutProfile(r.Context(), userID, doc)
	}
	if err != nil {
		log.Error("saving profile failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Analysis failed", Details: err.Error()})
		return
	}

	log.Info("usage",
		zap.String("action", "document_analysis"),
		zap.String("company", profile.CompanyName),
		zap.Int("naics_codes", len(profile.NAICSCodes)),
		zap.Float64("confidence", profile.ConfidenceScore),
	)

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "profile": profile})
}

// analyzedProfile returns the stored profile when it was analyzed from the same statement.
func (h *handlers) analyzedProfile(ctx context.Context, userID, hash string) (*rfp.BusinessProfile, error) {
	doc, ok, err := h.deps.Profiles.GetProfile(ctx, userID)
	if err != nil || !ok {
		return nil, err
	}

	profile, err := rfp.DecodeProfile(doc)
	if err != nil {
		return nil, err
	}
	if profile.StatementHash != hash {
		return nil, nil
	}

	return profile, nil
}

func (h *handlers) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	token, ok := bearer(r.Header.Get("Authorization"))
	if !ok || h.deps.Tokens == nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Unauthorized"})
		return "", false
	}

	userID, err := h.deps.Tokens.Verify(token)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Unauthorized"})
		return "", false
	}

	return userID, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
