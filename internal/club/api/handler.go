// Package api exposes the club lifecycle over a JSON HTTP surface. The
// handlers stay thin: decode, call the domain service, map errors to
// status codes.
package api

import (
	"crypto/subtle"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/torresgol10/movie-club/internal/auth"
	"github.com/torresgol10/movie-club/internal/club/domain"
	"github.com/torresgol10/movie-club/internal/club/storage"
	"github.com/torresgol10/movie-club/internal/platform/id"
)

const tracerName = "movie-club/api"

// Handler serves the club JSON API.
type Handler struct {
	svc        *domain.Service
	pushStore  storage.PushSubscriptionStore
	sessions   *auth.Manager
	adminToken string
	cronSecret string
	clock      func() time.Time
	newID      func() (string, error)
}

// HandlerConfig carries the handler dependencies.
type HandlerConfig struct {
	Service    *domain.Service
	PushStore  storage.PushSubscriptionStore
	Sessions   *auth.Manager
	AdminToken string
	CronSecret string
	Clock      func() time.Time
	NewID      func() (string, error)
}

// NewHandler builds the HTTP handler for the club API.
func NewHandler(cfg HandlerConfig) (http.Handler, error) {
	if cfg.Service == nil {
		return nil, errors.New("domain service is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session manager is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = id.NewID
	}
	h := &Handler{
		svc:        cfg.Service,
		pushStore:  cfg.PushStore,
		sessions:   cfg.Sessions,
		adminToken: cfg.AdminToken,
		cronSecret: cfg.CronSecret,
		clock:      cfg.Clock,
		newID:      cfg.NewID,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", h.handleLogin)
	mux.HandleFunc("POST /api/auth/logout", h.handleLogout)
	mux.HandleFunc("POST /api/members", h.handleCreateMember)
	mux.HandleFunc("GET /api/state", h.handleState)
	mux.HandleFunc("GET /api/movies", h.withSession(h.handleDashboard))
	mux.HandleFunc("POST /api/movies", h.withSession(h.handleSubmitMovie))
	mux.HandleFunc("GET /api/vetting", h.withSession(h.handleVettingStatus))
	mux.HandleFunc("POST /api/vetting", h.withSession(h.handleSubmitVetting))
	mux.HandleFunc("GET /api/votes/pending", h.withSession(h.handlePendingVotes))
	mux.HandleFunc("POST /api/votes", h.withSession(h.handleSubmitVote))
	mux.HandleFunc("POST /api/push/subscribe", h.withSession(h.handlePushSubscribe))
	mux.HandleFunc("GET /api/cron/weekly-transition", h.withCronSecret(h.handleWeeklyTransition))
	mux.HandleFunc("GET /api/cron/push-reminders", h.withCronSecret(h.handlePushReminders))
	return traceRequests(mux), nil
}

// traceRequests opens one span per request.
func traceRequests(next http.Handler) http.Handler {
	tracer := otel.Tracer(tracerName)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path)
		defer span.End()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, session auth.Session)

// withSession rejects requests without a valid session cookie.
func (h *Handler) withSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := h.sessions.FromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next(w, r, session)
	}
}

// withCronSecret guards the scheduled endpoints with a bearer secret.
func (h *Handler) withCronSecret(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.cronSecret == "" {
			writeError(w, http.StatusForbidden, "cron endpoint is disabled")
			return
		}
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.cronSecret)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid cron secret")
			return
		}
		next(w, r)
	}
}

type loginRequest struct {
	Name string `json:"name"`
	PIN  string `json:"pin"`
}

type memberResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	member, err := h.svc.Authenticate(r.Context(), req.Name, req.PIN)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	token, err := h.sessions.Issue(member.ID, member.Name)
	if err != nil {
		log.Printf("issue session: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	auth.SetCookie(w, token, h.clock().Add(auth.SessionTTL))
	writeJSON(w, http.StatusOK, memberResponse{ID: member.ID, Name: member.Name})
}

func (h *Handler) handleLogout(w http.ResponseWriter, _ *http.Request) {
	auth.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

type createMemberRequest struct {
	Name string `json:"name"`
	PIN  string `json:"pin"`
}

func (h *Handler) handleCreateMember(w http.ResponseWriter, r *http.Request) {
	if h.adminToken == "" {
		writeError(w, http.StatusForbidden, "member creation is disabled")
		return
	}
	got := r.Header.Get("X-Admin-Token")
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.adminToken)) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid admin token")
		return
	}
	var req createMemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	member, err := h.svc.CreateMember(r.Context(), domain.CreateMemberInput{Name: req.Name, PIN: req.PIN})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, memberResponse{ID: member.ID, Name: member.Name})
}

type stateResponse struct {
	Phase string `json:"phase"`
	Week  int    `json:"week"`
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	state, err := h.svc.AppState(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stateResponse{Phase: string(state.Phase), Week: state.Week})
}

type movieResponse struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Year        int    `json:"year,omitempty"`
	CoverURL    string `json:"cover_url,omitempty"`
	Status      string `json:"status"`
	WeekNumber  int    `json:"week_number,omitempty"`
}

func toMovieResponse(movie storage.MovieRecord) movieResponse {
	return movieResponse{
		ID:          movie.ID,
		Title:       movie.Title,
		Description: movie.Description,
		Year:        movie.Year,
		CoverURL:    movie.CoverURL,
		Status:      string(movie.Status),
		WeekNumber:  movie.WeekNumber,
	}
}

type queueEntryResponse struct {
	MovieID    string `json:"movie_id"`
	Title      string `json:"title"`
	WeekNumber int    `json:"week_number"`
	Mine       bool   `json:"mine"`
}

type historyEntryResponse struct {
	Movie        movieResponse `json:"movie"`
	AverageScore float64       `json:"average_score"`
}

type dashboardResponse struct {
	Phase           string                 `json:"phase"`
	Week            int                    `json:"week"`
	MySubmission    *movieResponse         `json:"my_submission,omitempty"`
	ActiveProposals int                    `json:"active_proposals"`
	TotalMembers    int                    `json:"total_members"`
	Queue           []queueEntryResponse   `json:"queue"`
	History         []historyEntryResponse `json:"history"`
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request, session auth.Session) {
	view, err := h.svc.Dashboard(r.Context(), session.MemberID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := dashboardResponse{
		Phase:           string(view.State.Phase),
		Week:            view.State.Week,
		ActiveProposals: view.ActiveProposals,
		TotalMembers:    view.TotalMembers,
		Queue:           []queueEntryResponse{},
		History:         []historyEntryResponse{},
	}
	if view.MySubmission != nil {
		movie := toMovieResponse(*view.MySubmission)
		resp.MySubmission = &movie
	}
	for _, entry := range view.Queue {
		resp.Queue = append(resp.Queue, queueEntryResponse{
			MovieID:    entry.MovieID,
			Title:      entry.Title,
			WeekNumber: entry.WeekNumber,
			Mine:       entry.Mine,
		})
	}
	for _, entry := range view.History {
		resp.History = append(resp.History, historyEntryResponse{
			Movie:        toMovieResponse(entry.Movie),
			AverageScore: entry.AverageScore,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type submitMovieRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Year        int    `json:"year"`
	CoverURL    string `json:"cover_url"`
}

func (h *Handler) handleSubmitMovie(w http.ResponseWriter, r *http.Request, session auth.Session) {
	var req submitMovieRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	err := h.svc.SubmitMovie(r.Context(), domain.SubmitMovieInput{
		MemberID:    session.MemberID,
		Title:       req.Title,
		Description: req.Description,
		Year:        req.Year,
		CoverURL:    req.CoverURL,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type vettingStatusResponse struct {
	Movie     movieResponse `json:"movie"`
	Pending   []string      `json:"pending_members"`
	Responded bool          `json:"responded"`
}

func (h *Handler) handleVettingStatus(w http.ResponseWriter, r *http.Request, session auth.Session) {
	movie, err := h.svc.VettingMovie(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	pending, err := h.svc.PendingVetting(r.Context(), movie.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := vettingStatusResponse{Movie: toMovieResponse(movie), Pending: []string{}, Responded: true}
	for _, member := range pending {
		resp.Pending = append(resp.Pending, member.Name)
		if member.ID == session.MemberID {
			resp.Responded = false
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type submitVettingRequest struct {
	Seen bool `json:"seen"`
}

func (h *Handler) handleSubmitVetting(w http.ResponseWriter, r *http.Request, session auth.Session) {
	var req submitVettingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.SubmitVetting(r.Context(), session.MemberID, req.Seen); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type pendingVotesResponse struct {
	Movies []movieResponse `json:"movies"`
}

func (h *Handler) handlePendingVotes(w http.ResponseWriter, r *http.Request, session auth.Session) {
	movies, err := h.svc.PendingVotesForMember(r.Context(), session.MemberID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := pendingVotesResponse{Movies: []movieResponse{}}
	for _, movie := range movies {
		resp.Movies = append(resp.Movies, toMovieResponse(movie))
	}
	writeJSON(w, http.StatusOK, resp)
}

type submitVoteRequest struct {
	MovieID string `json:"movie_id"`
	Score   int    `json:"score"`
	Comment string `json:"comment"`
}

func (h *Handler) handleSubmitVote(w http.ResponseWriter, r *http.Request, session auth.Session) {
	var req submitVoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	err := h.svc.SubmitVote(r.Context(), domain.SubmitVoteInput{
		MemberID: session.MemberID,
		MovieID:  req.MovieID,
		Score:    req.Score,
		Comment:  req.Comment,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type pushSubscribeRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

func (h *Handler) handlePushSubscribe(w http.ResponseWriter, r *http.Request, session auth.Session) {
	if h.pushStore == nil {
		writeError(w, http.StatusForbidden, "push subscriptions are disabled")
		return
	}
	var req pushSubscribeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Endpoint) == "" {
		writeError(w, http.StatusBadRequest, "endpoint is required")
		return
	}
	subscriptionID, err := h.newID()
	if err != nil {
		log.Printf("new subscription id: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	err = h.pushStore.PutPushSubscription(r.Context(), storage.PushSubscriptionRecord{
		ID:        subscriptionID,
		MemberID:  session.MemberID,
		Endpoint:  strings.TrimSpace(req.Endpoint),
		P256dh:    req.Keys.P256dh,
		Auth:      req.Keys.Auth,
		CreatedAt: h.clock(),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

type transitionResponse struct {
	Phase           string `json:"phase"`
	PreviousWeek    int    `json:"previous_week"`
	CurrentWeek     int    `json:"current_week"`
	PromotedMovieID string `json:"promoted_movie_id,omitempty"`
}

func (h *Handler) handleWeeklyTransition(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.RunWeeklyTransition(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transitionResponse{
		Phase:           string(result.Phase),
		PreviousWeek:    result.PreviousWeek,
		CurrentWeek:     result.CurrentWeek,
		PromotedMovieID: result.PromotedMovieID,
	})
}

type reminderResponse struct {
	VettingReminders int `json:"vetting_reminders"`
	VoteReminders    int `json:"vote_reminders"`
}

func (h *Handler) handlePushReminders(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.SendReminders(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reminderResponse{
		VettingReminders: result.VettingReminders,
		VoteReminders:    result.VoteReminders,
	})
}
