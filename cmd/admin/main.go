package main

import (
	"context"
	"log"
	"os"

	"matchroom/backend/internal/chatroom"
	"matchroom/backend/internal/config"
	"matchroom/backend/internal/ledger"
	"matchroom/backend/internal/storage"

	"github.com/docopt/docopt-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const AdminVersion = "0.1.0"

var Out = log.New(os.Stdout, "", 0)

func main() {
	usage := `Matchroom admin.

Usage:
    admin reconcile <user_a> <user_b>
    admin close-room <room_id>
    admin active-rooms
    admin sweep
    admin chat-count <user_id>

Options:
    -h --help     Show this screen.
    --version     Show version.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], AdminVersion)
	if err != nil {
		log.Fatalf("invalid arguments: %v", err)
	}

	ctx := context.Background()
	cfg := config.Read()

	db, err := gorm.Open(postgres.Open(cfg.GetDSN()), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	s := storage.NewStorageService(db, rdb)
	l := ledger.New(s.Remote(), nil, nil)
	rooms := chatroom.NewRegistry(s.Remote(), chatroom.Options{
		Archive:    s,
		Users:      s,
		Ledger:     l,
		DurationMs: cfg.RoomDurationMs,
	})

	if reconcile_, _ := opts.Bool("reconcile"); reconcile_ {
		err = reconcile(ctx, l, opts)
	} else if closeRoom_, _ := opts.Bool("close-room"); closeRoom_ {
		err = closeRoom(ctx, rooms, opts)
	} else if activeRooms_, _ := opts.Bool("active-rooms"); activeRooms_ {
		err = activeRooms(ctx, s)
	} else if sweep_, _ := opts.Bool("sweep"); sweep_ {
		err = sweep(ctx, rooms)
	} else if chatCount_, _ := opts.Bool("chat-count"); chatCount_ {
		err = chatCount(ctx, rooms, opts)
	}
	if err != nil {
		log.Fatalf("error: %v", err)
	}
}

func reconcile(ctx context.Context, l *ledger.Ledger, opts docopt.Opts) error {
	a, _ := opts.String("<user_a>")
	b, _ := opts.String("<user_b>")
	repaired, err := l.Reconcile(ctx, a, b)
	if err != nil {
		return err
	}
	if repaired {
		Out.Printf("Pair %s/%s repaired.\n", a, b)
	} else {
		Out.Printf("Pair %s/%s is consistent.\n", a, b)
	}
	return nil
}

func closeRoom(ctx context.Context, rooms *chatroom.Registry, opts docopt.Opts) error {
	roomID, _ := opts.String("<room_id>")
	if err := rooms.Close(ctx, roomID); err != nil {
		return err
	}
	Out.Printf("Room %s has been closed.\n", roomID)
	return nil
}

func activeRooms(ctx context.Context, archive storage.RoomArchive) error {
	ids, err := archive.GetActiveRoomIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		Out.Println(id)
	}
	Out.Printf("%d active room(s)\n", len(ids))
	return nil
}

func sweep(ctx context.Context, rooms *chatroom.Registry) error {
	closed, err := rooms.SweepArchive(ctx)
	if err != nil {
		return err
	}
	for _, id := range closed {
		Out.Printf("closed %s\n", id)
	}
	return nil
}

func chatCount(ctx context.Context, rooms *chatroom.Registry, opts docopt.Opts) error {
	userID, _ := opts.String("<user_id>")
	n, err := rooms.ChatCount(ctx, userID)
	if err != nil {
		return err
	}
	Out.Println(n)
	return nil
}
