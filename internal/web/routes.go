package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-id/internal/web/handlers"
)

func (s *Server) setupRoutes(opts Options) {
	facesHandler := handlers.NewFacesHandler(s.config, s.recognizer, s.logger)
	importHandler := handlers.NewImportHandler(opts.Import, s.logger)

	s.router.Get("/", handlers.Root)
	s.router.Get("/health", facesHandler.Health)
	s.router.Get("/api/v1/health", facesHandler.Health)

	if opts.Metrics != nil {
		s.router.Handle("/metrics", opts.Metrics)
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		// Faces
		r.Get("/faces", facesHandler.List)
		r.Post("/faces/add", facesHandler.Add)
		r.Post("/faces/identify", facesHandler.Identify)
		r.Post("/faces/clear", facesHandler.Clear)
		r.Delete("/faces/{userID}", facesHandler.Delete)

		// Raw embeddings
		r.Post("/embeddings/enroll", facesHandler.EnrollEmbedding)
		r.Post("/embeddings/identify", facesHandler.IdentifyEmbedding)

		// Bulk import
		r.Post("/storedb", importHandler.Run)
	})
}
