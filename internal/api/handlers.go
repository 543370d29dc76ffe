package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dadbase/dadbase/internal/domain"
)

// ─── Request bodies ─────────────────────────────────────────────────────────

type ensureUserRequest struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

type grantRequest struct {
	Reason     domain.XPReason `json:"reason"`
	Multiplier *float64        `json:"multiplier,omitempty"`
}

type trackRequest struct {
	Action domain.XPReason `json:"action"`
}

type freezesRequest struct {
	Count int `json:"count"`
}

type titleRequest struct {
	TitleID string `json:"title_id"`
}

type progressRequest struct {
	Delta int `json:"delta"`
}

// ─── Users & XP ─────────────────────────────────────────────────────────────

func (s *Server) handleEnsureUser(w http.ResponseWriter, r *http.Request) {
	var req ensureUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	user, err := s.engine.EnsureUser(r.Context(), chi.URLParam(r, "userID"), req.Name, req.Avatar)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.engine.Summary(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	grants, err := s.engine.History(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"grants": grants})
}

func (s *Server) handleGrantXP(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	mult := 1.0
	if req.Multiplier != nil {
		mult = *req.Multiplier
	}
	res, err := s.engine.GrantXP(r.Context(), chi.URLParam(r, "userID"), req.Reason, mult)
	if err != nil && res.Grant.ID == "" {
		writeEngineError(w, r, err)
		return
	}
	// The grant is durable even if the follow-up badge scan failed.
	body := map[string]interface{}{
		"grant":      res.Grant,
		"change":     res.Change,
		"leveled_up": res.LeveledUp(),
		"new_badges": res.NewBadges,
	}
	if err != nil {
		body["scan_error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	res, err := s.engine.Track(r.Context(), chi.URLParam(r, "userID"), req.Action)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleScanBadges(w http.ResponseWriter, r *http.Request) {
	awarded, err := s.engine.ScanAndAward(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	if awarded == nil {
		awarded = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"new_badges": awarded})
}

// ─── Streaks ────────────────────────────────────────────────────────────────

func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.CheckInToday(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStreak(w http.ResponseWriter, r *http.Request) {
	streak, err := s.engine.Streak(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, streak)
}

func (s *Server) handleUseFreeze(w http.ResponseWriter, r *http.Request) {
	remaining, err := s.engine.UseStreakFreeze(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"streak_freezes": remaining})
}

func (s *Server) handleAddFreezes(w http.ResponseWriter, r *http.Request) {
	var req freezesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	total, err := s.engine.AddStreakFreezes(r.Context(), chi.URLParam(r, "userID"), req.Count)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"streak_freezes": total})
}

// ─── Titles ─────────────────────────────────────────────────────────────────

func (s *Server) handleTitles(w http.ResponseWriter, r *http.Request) {
	titles, err := s.engine.AvailableTitles(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"titles": titles})
}

func (s *Server) handleSetTitle(w http.ResponseWriter, r *http.Request) {
	var req titleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := s.engine.SetActiveTitle(r.Context(), chi.URLParam(r, "userID"), req.TitleID); err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"active_title": req.TitleID})
}

func (s *Server) handleGrantSpecialTitle(w http.ResponseWriter, r *http.Request) {
	var req titleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	added, err := s.engine.GrantSpecialTitle(r.Context(), chi.URLParam(r, "userID"), req.TitleID)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"title_id": req.TitleID, "added": added})
}

// ─── Leaderboard ────────────────────────────────────────────────────────────

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	typ, err := domain.ParseLeaderboardType(r.URL.Query().Get("type"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	board, err := s.engine.FetchLeaderboard(r.Context(), typ, r.URL.Query().Get("user"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// ─── Quests ─────────────────────────────────────────────────────────────────

func (s *Server) handleQuests(w http.ResponseWriter, r *http.Request) {
	quests, err := s.engine.DailyQuests(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"quests": quests})
}

func (s *Server) handleRollQuests(w http.ResponseWriter, r *http.Request) {
	quests, err := s.engine.RollDailyQuests(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"quests": quests})
}

func (s *Server) handleQuestProgress(w http.ResponseWriter, r *http.Request) {
	req := progressRequest{Delta: 1}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	q, err := s.engine.RecordQuestProgress(r.Context(),
		chi.URLParam(r, "userID"), chi.URLParam(r, "questID"), req.Delta)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleClaimQuest(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.ClaimQuest(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "questID"))
	if err != nil && !res.Claimed {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ─── Notifications ──────────────────────────────────────────────────────────

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	pending, err := s.notifications.Pending(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	if pending == nil {
		pending = []domain.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"notifications": pending})
}

func (s *Server) handleNotificationShown(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "notificationID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "notification id must be an integer")
		return
	}
	if err := s.notifications.MarkShown(r.Context(), chi.URLParam(r, "userID"), id); err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ─── Catalog ────────────────────────────────────────────────────────────────

func (s *Server) handleCatalogLevels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"levels": s.engine.Catalog().Levels})
}

func (s *Server) handleCatalogBadges(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"badges": s.engine.Catalog().Badges})
}

func (s *Server) handleCatalogTitles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"titles": s.engine.Catalog().Titles})
}

func (s *Server) handleCatalogQuests(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"quests": s.engine.Catalog().Quests})
}
