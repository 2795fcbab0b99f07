package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"github.com/wuwenbin0122/otpchat/internal/db"
	"github.com/wuwenbin0122/otpchat/internal/utils"
)

// inspect_chats prints every chat of one user with its conversation count.
func main() {
	userID := flag.String("user", "", "owner user id")
	flag.Parse()

	if *userID == "" {
		log.Fatal("usage: inspect_chats -user <user id>")
	}

	_ = godotenv.Load()

	cfg, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()
	store, err := db.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("open %s store: %v", cfg.StoreDriver, err)
	}
	defer store.Close(ctx)

	user, err := store.FindUserByID(ctx, *userID)
	if err != nil {
		log.Fatalf("lookup user %s: %v", *userID, err)
	}

	chats, err := store.ListChatsByOwner(ctx, user.ID)
	if err != nil {
		log.Fatalf("list chats: %v", err)
	}

	fmt.Printf("user %s (%s): %d chats\n", user.Email, user.ID, len(chats))
	for _, chat := range chats {
		conversations, err := store.ListConversationsByChat(ctx, chat.ID)
		if err != nil {
			log.Fatalf("list conversations for %s: %v", chat.ID, err)
		}
		fmt.Printf("- %s created %s, %d turns, latest %q\n",
			chat.ID, chat.CreatedAt.Format("2006-01-02 15:04:05"), len(conversations), chat.LatestMessage)
	}
}
