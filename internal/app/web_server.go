package app

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	defaultWebAddr        = ":8080"
	adminMaxMultipartSize = 64 << 20 // 64 MiB
)

//go:embed templates/*.html
var templateFS embed.FS

// AdminService — веб-панель: каталог треков, рассылки, бэкапы.
// Все маршруты кроме логина закрыты серверной сессией.
type AdminService struct {
	store       Store
	broadcaster *Broadcaster
	sessions    *sessionStore
	password    string
	templates   *template.Template
}

func NewAdminService(store Store, broadcaster *Broadcaster, password string) (*AdminService, error) {
	if strings.TrimSpace(password) == "" {
		return nil, errors.New("пароль админки не задан")
	}
	funcs := template.FuncMap{
		"shorten": shorten,
	}
	tmpl, err := template.New("admin").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("шаблоны админки: %w", err)
	}
	return &AdminService{
		store:       store,
		broadcaster: broadcaster,
		sessions:    newSessionStore(),
		password:    password,
		templates:   tmpl,
	}, nil
}

func startWebServer(addr string, admin *AdminService) {
	if strings.TrimSpace(addr) == "" {
		addr = defaultWebAddr
	}
	if admin == nil {
		log.Printf("⚠️ Веб-сервер не запущен: админка не инициализирована")
		return
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           admin.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("✅ Веб-панель запущена на %s", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("⚠️ Веб-сервер остановлен: %v", err)
	}
}

func (s *AdminService) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Get("/healthz", handleHealth)

	r.Route("/admin_web", func(r chi.Router) {
		r.Get("/login", s.loginForm)
		r.Post("/login", s.loginSubmit)
		r.Get("/logout", s.logout)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)

			r.Get("/", s.indexPage)
			r.Post("/tracks/new", s.createTrack)
			r.Post("/tracks/{id}/edit", s.editTrack)
			r.Post("/tracks/{id}/delete", s.deleteTrack)

			r.Get("/broadcasts", s.broadcastsPage)
			r.Get("/broadcasts/new", s.broadcastForm)
			r.Post("/broadcasts/new", s.broadcastSubmit)
			r.Post("/broadcasts/{id}/delete", s.broadcastDelete)

			r.Get("/backup", s.backupDownload)
			r.Post("/restore", s.restoreUpload)

			r.Get("/stats", s.statsPage)
			r.Get("/stats.png", s.statsChart)
		})
	})

	return r
}

// requireAdmin пускает дальше только запросы с живой сессией.
// Проверка на каждом запросе, никакого глобального флага.
func (s *AdminService) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.sessions.Valid(sessionToken(r)) {
			http.Redirect(w, r, "/admin_web/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *AdminService) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		log.Printf("⚠️ Ошибка шаблона %s: %v", name, err)
	}
}

// ==========================================
// ВХОД / ВЫХОД
// ==========================================

func (s *AdminService) loginForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, "login.html", map[string]any{"Error": ""})
}

func (s *AdminService) loginSubmit(w http.ResponseWriter, r *http.Request) {
	if r.FormValue("password") != s.password {
		s.render(w, "login.html", map[string]any{"Error": "Неверный пароль"})
		return
	}
	setSessionCookie(w, s.sessions.Create())
	http.Redirect(w, r, "/admin_web", http.StatusSeeOther)
}

func (s *AdminService) logout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Revoke(sessionToken(r))
	clearSessionCookie(w)
	http.Redirect(w, r, "/admin_web/login", http.StatusSeeOther)
}

// ==========================================
// КАТАЛОГ ТРЕКОВ
// ==========================================

func (s *AdminService) indexPage(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.store.ListTracks(r.Context())
	if err != nil {
		log.Printf("⚠️ Ошибка списка треков: %v", err)
	}
	s.render(w, "index.html", map[string]any{
		"Tracks":        tracks,
		"RestoreStatus": r.URL.Query().Get("restore"),
	})
}

func (s *AdminService) createTrack(w http.ResponseWriter, r *http.Request) {
	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		http.Redirect(w, r, "/admin_web", http.StatusSeeOther)
		return
	}
	track := &Track{
		Title:    title,
		Points:   parsePoints(r.FormValue("points")),
		Hint:     strings.TrimSpace(r.FormValue("hint")),
		IsActive: true,
	}
	if err := s.store.CreateTrack(r.Context(), track); err != nil {
		log.Printf("⚠️ Ошибка создания трека: %v", err)
	}
	http.Redirect(w, r, "/admin_web", http.StatusSeeOther)
}

func (s *AdminService) editTrack(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Redirect(w, r, "/admin_web", http.StatusSeeOther)
		return
	}
	track, err := s.store.GetTrack(r.Context(), id)
	if err != nil {
		// Трек исчез (удален параллельно) — просто назад к списку.
		http.Redirect(w, r, "/admin_web", http.StatusSeeOther)
		return
	}

	track.Title = strings.TrimSpace(r.FormValue("title"))
	track.Points = parsePoints(r.FormValue("points"))
	track.Hint = strings.TrimSpace(r.FormValue("hint"))
	track.IsActive = r.FormValue("is_active") != ""

	if err := s.store.UpdateTrack(r.Context(), track); err != nil && !errors.Is(err, ErrNotFound) {
		log.Printf("⚠️ Ошибка обновления трека %d: %v", id, err)
	}
	http.Redirect(w, r, "/admin_web", http.StatusSeeOther)
}

func (s *AdminService) deleteTrack(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err == nil {
		if err := s.store.DeleteTrack(r.Context(), id); err != nil && !errors.Is(err, ErrNotFound) {
			log.Printf("⚠️ Ошибка удаления трека %d: %v", id, err)
		}
	}
	http.Redirect(w, r, "/admin_web", http.StatusSeeOther)
}

func parsePoints(raw string) int {
	points, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || points < 1 {
		return 1
	}
	return points
}

// ==========================================
// РАССЫЛКИ
// ==========================================

func (s *AdminService) broadcastsPage(w http.ResponseWriter, r *http.Request) {
	broadcasts, err := s.store.ListBroadcasts(r.Context())
	if err != nil {
		log.Printf("⚠️ Ошибка списка рассылок: %v", err)
	}
	s.render(w, "broadcasts.html", map[string]any{
		"Broadcasts": broadcasts,
		"Sent":       r.URL.Query().Get("sent"),
		"Failed":     r.URL.Query().Get("failed"),
	})
}

func (s *AdminService) broadcastForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, "broadcast_new.html", map[string]any{"Error": ""})
}

func (s *AdminService) broadcastSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(adminMaxMultipartSize); err != nil {
		s.render(w, "broadcast_new.html", map[string]any{"Error": "Не удалось разобрать форму"})
		return
	}

	photos, closers1 := formUploads(r, "photos")
	videos, closers2 := formUploads(r, "videos")
	files, closers3 := formUploads(r, "files")
	defer closeAll(append(append(closers1, closers2...), closers3...))

	id, err := s.broadcaster.Compose(r.Context(),
		r.FormValue("title"), r.FormValue("body"), photos, videos, files)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmptyBroadcast):
			s.render(w, "broadcast_new.html", map[string]any{"Error": "Рассылка пустая: добавьте текст или файлы"})
		case errors.Is(err, ErrNoRecipients):
			s.render(w, "broadcast_new.html", map[string]any{"Error": "Нет пользователей для рассылки"})
		default:
			log.Printf("⚠️ Ошибка создания рассылки: %v", err)
			s.render(w, "broadcast_new.html", map[string]any{"Error": "Внутренняя ошибка, попробуйте еще раз"})
		}
		return
	}

	sent, failed, err := s.broadcaster.Dispatch(r.Context(), id)
	if err != nil {
		log.Printf("⚠️ Ошибка отправки рассылки %d: %v", id, err)
	}
	http.Redirect(w, r, fmt.Sprintf("/admin_web/broadcasts?sent=%d&failed=%d", sent, failed), http.StatusSeeOther)
}

func (s *AdminService) broadcastDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err == nil {
		if err := s.broadcaster.Remove(r.Context(), id); err != nil && !errors.Is(err, ErrNotFound) {
			log.Printf("⚠️ Ошибка удаления рассылки %d: %v", id, err)
		}
	}
	http.Redirect(w, r, "/admin_web/broadcasts", http.StatusSeeOther)
}

func formUploads(r *http.Request, field string) ([]Upload, []multipart.File) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	var uploads []Upload
	var closers []multipart.File
	for _, header := range r.MultipartForm.File[field] {
		file, err := header.Open()
		if err != nil {
			log.Printf("⚠️ Не удалось открыть загрузку %q: %v", header.Filename, err)
			continue
		}
		closers = append(closers, file)
		uploads = append(uploads, Upload{Name: header.Filename, Reader: file})
	}
	return uploads, closers
}

func closeAll(files []multipart.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

// ==========================================
// БЭКАП / ВОССТАНОВЛЕНИЕ
// ==========================================

func (s *AdminService) backupDownload(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="backup_uploads.zip"`)
	if err := writeBackupArchive(w, ".", dirUploads); err != nil {
		log.Printf("⚠️ Ошибка бэкапа: %v", err)
	}
}

func (s *AdminService) restoreUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(adminMaxMultipartSize); err != nil {
		http.Redirect(w, r, "/admin_web?restore=missing", http.StatusSeeOther)
		return
	}
	file, header, err := r.FormFile("archive")
	if err != nil || header == nil || strings.TrimSpace(header.Filename) == "" {
		http.Redirect(w, r, "/admin_web?restore=missing", http.StatusSeeOther)
		return
	}
	defer file.Close()

	if err := restoreArchive(file, ".", dirUploads); err != nil {
		log.Printf("⚠️ Ошибка восстановления: %v", err)
		http.Redirect(w, r, "/admin_web?restore=failed", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/admin_web?restore=ok", http.StatusSeeOther)
}

// ==========================================
// СТАТИСТИКА
// ==========================================

func (s *AdminService) statsPage(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.CountUsers(r.Context())
	if err != nil {
		log.Printf("⚠️ Ошибка подсчета пользователей: %v", err)
	}
	tracks, err := s.store.ListTracks(r.Context())
	if err != nil {
		log.Printf("⚠️ Ошибка списка треков: %v", err)
	}
	active := 0
	for _, t := range tracks {
		if t.IsActive {
			active++
		}
	}
	s.render(w, "stats.html", map[string]any{
		"Users":        users,
		"Tracks":       len(tracks),
		"ActiveTracks": active,
	})
}

func (s *AdminService) statsChart(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	png, err := generateJoinChart(users)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}
