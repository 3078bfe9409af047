package server

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"callgrid/internal/database"
	"callgrid/internal/gateway"
	"callgrid/internal/storage"
)

type Server struct {
	port    int
	db      database.Service
	gateway *gateway.Gateway
}

func (s *Server) GetDB() database.Service {
	return s.db
}

func (s *Server) GetGateway() *gateway.Gateway {
	return s.gateway
}

func NewServer() *http.Server {
	port, _ := strconv.Atoi(os.Getenv("PORT"))
	if port == 0 {
		port = 8080
	}

	s3Service, err := storage.NewS3Service()
	if err != nil {
		log.Fatalf("Failed to initialize S3 service: %v", err)
	}

	db := database.New()

	NewServer := &Server{
		port:    port,
		db:      db,
		gateway: gateway.New(db, s3Service),
	}

	// Declare Server config
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", NewServer.port),
		Handler:      NewServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return server
}
