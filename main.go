package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/MaheshIMDev/Flick/server"
)

func main() {
	s := server.NewServer()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Shutdown(ctx); err != nil {
			log.Errorf("Shutdown error: %v", err)
		}
		os.Exit(0)
	}()

	s.Start(s.Config.Server.Addr)
}
