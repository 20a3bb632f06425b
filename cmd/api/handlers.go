package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	accessdomain "github.com/davidleathers/clinical-access-backend/internal/domain/access"
	compliancedomain "github.com/davidleathers/clinical-access-backend/internal/domain/compliance"
	domainerrors "github.com/davidleathers/clinical-access-backend/internal/domain/errors"
	sessiondomain "github.com/davidleathers/clinical-access-backend/internal/domain/session"
	accesssvc "github.com/davidleathers/clinical-access-backend/internal/service/access"
	"github.com/davidleathers/clinical-access-backend/internal/service/audit"
	compliancesvc "github.com/davidleathers/clinical-access-backend/internal/service/compliance"
	"github.com/davidleathers/clinical-access-backend/internal/service/masking"
	sessionsvc "github.com/davidleathers/clinical-access-backend/internal/service/session"
)

type server struct {
	access   *accesssvc.Service
	engine   *compliancesvc.Engine
	sessions *sessionsvc.Manager
	masker   *masking.Masker
	recorder *audit.Recorder
	metrics  *metrics
	logger   *zap.Logger
}

func (s *server) routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/access/check", s.handleCheckAccess)
	mux.HandleFunc("POST /api/v1/compliance/validate", s.handleValidate)
	mux.HandleFunc("POST /api/v1/compliance/validate/quick", s.handleQuickValidate)
	mux.HandleFunc("POST /api/v1/compliance/validate/advanced", s.handleAdvancedValidate)
	mux.HandleFunc("GET /api/v1/compliance/summary", s.handleComplianceSummary)
	mux.HandleFunc("POST /api/v1/sessions", s.handleCreateSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/validate", s.handleValidateSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/renew", s.handleRenewSession)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", s.handleTerminateSession)
	mux.HandleFunc("POST /api/v1/masking/mask", s.handleMaskObject)
}

func (s *server) handleCheckAccess(w http.ResponseWriter, r *http.Request) {
	var req accessdomain.Context
	if !s.decode(w, r, &req) {
		return
	}

	result := s.access.CheckAccess(r.Context(), req)

	outcome := audit.OutcomeDenied
	label := "denied"
	if result.Granted {
		outcome = audit.OutcomeSuccess
		label = "granted"
	}
	s.metrics.accessDecisions.WithLabelValues(label).Inc()
	s.audit(r, audit.Event{
		EventType: "access_check",
		UserID:    req.UserID,
		Action:    string(req.Action),
		Resource:  req.Resource,
		Outcome:   outcome,
		Details:   map[string]interface{}{"reason": result.Reason},
	})

	s.respond(w, http.StatusOK, result)
}

func (s *server) decodeComplianceContext(w http.ResponseWriter, r *http.Request) (compliancedomain.Context, bool) {
	var vc compliancedomain.Context
	if !s.decode(w, r, &vc) {
		return compliancedomain.Context{}, false
	}
	return vc, true
}

func (s *server) handleValidate(w http.ResponseWriter, r *http.Request) {
	vc, ok := s.decodeComplianceContext(w, r)
	if !ok {
		return
	}
	report := s.engine.ValidateCompliance(r.Context(), vc)
	s.metrics.complianceScore.Observe(float64(report.OverallCompliance))
	s.metrics.complianceFailed.Add(float64(report.CriticalFailures))
	s.respond(w, http.StatusOK, report)
}

func (s *server) handleQuickValidate(w http.ResponseWriter, r *http.Request) {
	vc, ok := s.decodeComplianceContext(w, r)
	if !ok {
		return
	}
	s.respond(w, http.StatusOK, s.engine.QuickValidation(r.Context(), vc))
}

func (s *server) handleAdvancedValidate(w http.ResponseWriter, r *http.Request) {
	vc, ok := s.decodeComplianceContext(w, r)
	if !ok {
		return
	}
	assessment := s.engine.AdvancedValidation(r.Context(), vc)
	s.metrics.complianceScore.Observe(float64(assessment.Report.OverallCompliance))
	s.metrics.complianceFailed.Add(float64(assessment.Report.CriticalFailures))
	s.respond(w, http.StatusOK, assessment)
}

func (s *server) handleComplianceSummary(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, s.engine.Summary())
}

func (s *server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID      string                 `json:"user_id"`
		Role        string                 `json:"role"`
		Permissions []string               `json:"permissions"`
		IPAddress   string                 `json:"ip_address"`
		UserAgent   string                 `json:"user_agent"`
		Data        map[string]interface{} `json:"data"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	sess, err := s.sessions.CreateSession(r.Context(), req.UserID, req.Role, req.Permissions, &sessionsvc.Meta{
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
		Data:      req.Data,
	})
	if err != nil {
		s.error(w, err)
		return
	}

	s.metrics.sessionsCreated.Inc()
	s.audit(r, audit.Event{
		EventType: "session_created",
		UserID:    req.UserID,
		Action:    "create",
		Resource:  "session",
		Outcome:   audit.OutcomeSuccess,
		IPAddress: req.IPAddress,
	})
	s.respond(w, http.StatusCreated, sess.Info())
}

func (s *server) handleValidateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IPAddress string `json:"ip_address"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	sess, err := s.sessions.ValidateSession(r.Context(), r.PathValue("id"), req.IPAddress)
	if err != nil {
		s.error(w, err)
		return
	}
	if sess == nil {
		s.respond(w, http.StatusUnauthorized, map[string]interface{}{"valid": false})
		return
	}
	s.respond(w, http.StatusOK, map[string]interface{}{"valid": true, "session": sess.Info()})
}

func (s *server) handleRenewSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.RenewSession(r.Context(), r.PathValue("id"))
	if err != nil {
		s.error(w, err)
		return
	}
	if sess == nil {
		s.respond(w, http.StatusUnauthorized, map[string]interface{}{"renewed": false})
		return
	}
	s.respond(w, http.StatusOK, map[string]interface{}{"renewed": true, "session": sess.Info()})
}

func (s *server) handleTerminateSession(w http.ResponseWriter, r *http.Request) {
	terminated, err := s.sessions.TerminateSession(r.Context(), r.PathValue("id"), sessiondomain.ReasonManual)
	if err != nil {
		s.error(w, err)
		return
	}
	if !terminated {
		s.respond(w, http.StatusNotFound, map[string]interface{}{"terminated": false})
		return
	}
	s.respond(w, http.StatusOK, map[string]interface{}{"terminated": true})
}

func (s *server) handleMaskObject(w http.ResponseWriter, r *http.Request) {
	var payload map[string]interface{}
	if !s.decode(w, r, &payload) {
		return
	}
	s.respond(w, http.StatusOK, s.masker.MaskObject(payload))
}

func (s *server) audit(r *http.Request, event audit.Event) {
	if _, err := s.recorder.LogEvent(r.Context(), event); err != nil {
		s.logger.Warn("audit logging failed", zap.Error(err))
		return
	}
	s.metrics.auditEventsLogged.WithLabelValues(string(event.Outcome)).Inc()
}

func (s *server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respond(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func (s *server) respond(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *server) error(w http.ResponseWriter, err error) {
	var appErr *domainerrors.AppError
	status := http.StatusInternalServerError
	if errors.As(err, &appErr) {
		switch appErr.Type {
		case domainerrors.ErrorTypeValidation:
			status = http.StatusBadRequest
		case domainerrors.ErrorTypeConflict:
			status = http.StatusConflict
		}
	}
	s.logger.Error("request failed", zap.Error(err))
	s.respond(w, status, map[string]string{"error": err.Error()})
}
