package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/jmagar/cloudie-cli/internal/model"
	"github.com/jmagar/cloudie-cli/internal/store"
)

type trackDownloader interface {
	DownloadTrack(ctx context.Context, req model.TrackAcquisitionRequest, onProgress model.ProgressFunc) (*model.DownloadResult, error)
}

type loginProvider interface {
	Login(ctx context.Context) (string, error)
}

type taskQueue interface {
	List(ctx context.Context) ([]*model.DownloadTask, error)
	Resume(ctx context.Context, id int64) (*model.DownloadTask, error)
	Delete(ctx context.Context, id int64) error
	Run(ctx context.Context) error
}

// downloadRequest mirrors the parameters of a single track download.
type downloadRequest struct {
	FinalURL     string `json:"finalUrl"`
	DownloadType string `json:"downloadType"`
	Preset       string `json:"preset"`
	Title        string `json:"title"`
	PlaylistName string `json:"playlistName"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var body downloadRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(body.FinalURL) == "" {
		writeError(w, http.StatusBadRequest, errors.New("finalUrl is required"))
		return
	}
	kind, err := model.ParseTransportKind(body.DownloadType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	preset := body.Preset
	if preset == "" {
		preset = model.PresetNone
	}

	res, err := s.downloader.DownloadTrack(r.Context(), model.TrackAcquisitionRequest{
		SourceURL:    body.FinalURL,
		Transport:    kind,
		Preset:       preset,
		Title:        body.Title,
		PlaylistName: body.PlaylistName,
	}, nil)
	if err != nil {
		s.log.Error().Err(err).Str("title", body.Title).Msg("download failed")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.login == nil {
		writeError(w, http.StatusNotImplemented, errors.New("login is not available"))
		return
	}
	token, err := s.login.Login(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, model.ErrAlreadyInProgress):
			status = http.StatusConflict
		case errors.Is(err, model.ErrLoginCancelled):
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	if s.onToken != nil {
		if err := s.onToken(token); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.tasks.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if tasks == nil {
		tasks = []*model.DownloadTask{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func taskID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(mux.Vars(r)["taskID"])
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid task id")
	}
	return id, nil
}

func taskErrorStatus(err error) int {
	if errors.Is(err, store.ErrTaskNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) handleResumeTask(w http.ResponseWriter, r *http.Request) {
	id, err := taskID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	task, err := s.tasks.Resume(r.Context(), id)
	if err != nil {
		writeError(w, taskErrorStatus(err), err)
		return
	}
	s.startQueue()
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := taskID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.tasks.Delete(r.Context(), id); err != nil {
		writeError(w, taskErrorStatus(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
