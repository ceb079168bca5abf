package server

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/rs/zerolog/log"
)

//go:embed templates/*
var templateFiles embed.FS

func TemplateFilesFS() fs.FS {
	subFS, err := fs.Sub(templateFiles, "templates")
	if err != nil {
		panic("Failed to create templates sub filesystem: " + err.Error())
	}
	return subFS
}

// ParseTemplate parses a template from the embedded filesystem
func ParseTemplate(name string) (*template.Template, error) {
	content, err := fs.ReadFile(TemplateFilesFS(), name)
	if err != nil {
		return nil, err
	}
	return template.New(name).Parse(string(content))
}

// callbackPage is the data rendered into templates/callback.html.
type callbackPage struct {
	AppName  string
	Provider string
	Success  bool
	Message  string
}

func (s *Server) renderCallback(w http.ResponseWriter, status int, page callbackPage) {
	page.AppName = s.appName
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := s.callbackTmpl.Execute(w, page); err != nil {
		log.Error().Err(err).Msg("render callback page")
	}
}
