package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"qchat/backend/internal/api/handler"
	"qchat/backend/internal/storage"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type adminConfig struct {
	DatabaseURL string `env:"DATABASE_URL" envDefault:"host=localhost user=user password=password dbname=qchatdb port=5432 sslmode=disable"`
	JWTSecret   string `env:"JWT_SECRET"`
}

func usage() {
	fmt.Println("Usage: admin <command> [args]")
	fmt.Println("  history <room_id>        print stored messages of a room")
	fmt.Println("  purge <room_id>          delete stored messages of a room")
	fmt.Println("  rooms                    list rooms that are still open")
	fmt.Println("  token <user_id> [ttl]    issue an identity token (default ttl 24h)")
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	_ = godotenv.Load()
	var cfg adminConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("parse env: %v", err)
	}

	command := os.Args[1]
	if command == "token" {
		issueToken(cfg, os.Args[2:])
		return
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	storageSvc := storage.NewStorageService(db, nil, 0) // No redis needed for admin CLI

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch command {
	case "history":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin history <room_id>")
			os.Exit(1)
		}
		if err := printHistory(ctx, storageSvc, os.Args[2]); err != nil {
			log.Fatalf("Error reading history: %v", err)
		}
	case "purge":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin purge <room_id>")
			os.Exit(1)
		}
		n, err := storageSvc.DeleteChatHistory(ctx, os.Args[2])
		if err != nil {
			log.Fatalf("Error purging room: %v", err)
		}
		fmt.Printf("Deleted %d messages from room %s.\n", n, os.Args[2])
	case "rooms":
		if err := printRooms(ctx, storageSvc); err != nil {
			log.Fatalf("Error listing rooms: %v", err)
		}
	default:
		fmt.Println("Unknown command")
		usage()
	}
}

func printHistory(ctx context.Context, s storage.MessageStore, roomID string) error {
	history, err := s.GetChatHistory(ctx, roomID)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Printf("Room %s has no stored messages.\n", roomID)
		return nil
	}
	for _, msg := range history {
		fmt.Printf("%s  %-36s  %s\n", msg.CreatedAt.Format(time.RFC3339), msg.SenderID, msg.Content)
	}
	return nil
}

func printRooms(ctx context.Context, s storage.RoomStore) error {
	rooms, err := s.GetActiveRooms(ctx)
	if err != nil {
		return err
	}
	for _, r := range rooms {
		fmt.Printf("%s  %s <-> %s  since %s\n", r.RoomID, r.User1ID, r.User2ID, r.StartedAt.Format(time.RFC3339))
	}
	fmt.Printf("%d open rooms.\n", len(rooms))
	return nil
}

func issueToken(cfg adminConfig, args []string) {
	if len(args) < 1 || len(args) > 2 {
		fmt.Println("Usage: admin token <user_id> [ttl]")
		os.Exit(1)
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is not set")
	}
	ttl := 24 * time.Hour
	if len(args) == 2 {
		d, err := time.ParseDuration(args[1])
		if err != nil || d <= 0 {
			fmt.Println("Invalid ttl. Use a Go duration such as 30m or 12h.")
			os.Exit(1)
		}
		ttl = d
	}
	token, err := handler.NewAuthenticator(cfg.JWTSecret).Issue(args[0], ttl)
	if err != nil {
		log.Fatalf("Error issuing token: %v", err)
	}
	fmt.Println(token)
}
