package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/campuscore/campuscore/internal/i18n"
	"github.com/campuscore/campuscore/internal/model"
)

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers()
	if err != nil {
		slog.Error("list users", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	type userOut struct {
		ID          int64          `json:"id"`
		Username    string         `json:"username"`
		DisplayName string         `json:"display_name"`
		Role        model.UserRole `json:"role"`
		Active      bool           `json:"active"`
	}
	out := make([]userOut, 0, len(users))
	for _, u := range users {
		out = append(out, userOut{u.ID, u.Username, u.DisplayName, u.Role, u.Active})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username    string `json:"username"`
		DisplayName string `json:"display_name"`
		Password    string `json:"password"`
		Role        string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if body.Username == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password required")
		return
	}
	role := model.UserRole(body.Role)
	switch role {
	case model.UserRoleStudent, model.UserRoleInstructor, model.UserRoleAdmin:
	default:
		writeError(w, http.StatusBadRequest, "unknown role")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if body.DisplayName == "" {
		body.DisplayName = body.Username
	}

	id, err := h.store.CreateUser(model.User{
		Username:     body.Username,
		DisplayName:  body.DisplayName,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	})
	if err != nil {
		slog.Error("create user", "username", body.Username, "error", err)
		writeError(w, http.StatusConflict, "create user: "+err.Error())
		return
	}

	slog.Info("user created", "id", id, "username", body.Username, "role", role)
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *Handler) handleSetUserActive(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "userID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user ID")
		return
	}

	var body struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if err := h.store.SetUserActive(id, body.Active); err != nil {
		slog.Error("set user active", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUploadExams(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "file too large")
		return
	}

	file, header, err := r.FormFile("exams_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "read file")
		return
	}

	hashBytes := sha256.Sum256(data)
	hash := hex.EncodeToString(hashBytes[:])

	storedHash, err := h.store.GetImportedFileHash(header.Filename)
	if err != nil {
		slog.Error("check import status", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if storedHash == hash {
		writeJSON(w, http.StatusOK, map[string]any{
			"imported": 0,
			"message":  appI18n.T(r.Context(), "UploadDuplicate"),
		})
		return
	}

	var imports []model.ExamImport
	if err := json.Unmarshal(data, &imports); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	var ids []int64
	for i, ei := range imports {
		ex, err := ei.Exam()
		if err != nil {
			writeError(w, http.StatusBadRequest, "exam "+header.Filename+": "+err.Error())
			return
		}
		id, err := h.store.CreateExam(ex)
		if err != nil {
			slog.Error("create exam", "index", i, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		ids = append(ids, id)
	}

	if err := h.store.SetImportedFileHash(header.Filename, hash); err != nil {
		slog.Error("record import", "error", err)
	}

	slog.Info("uploaded exams via admin", "filename", header.Filename, "count", len(ids))
	writeJSON(w, http.StatusCreated, map[string]any{
		"imported": len(ids),
		"exam_ids": ids,
	})
}
