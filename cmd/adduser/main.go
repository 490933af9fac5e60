// Command adduser seeds a user account into the conversation store.
//
// Usage:
//
//	adduser -username alice -password secret
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/eldtechnologies/parlor/internal/auth"
	"github.com/eldtechnologies/parlor/internal/config"
	"github.com/eldtechnologies/parlor/internal/models"
	"github.com/eldtechnologies/parlor/internal/store"
)

func main() {
	username := flag.String("username", "", "username to create")
	password := flag.String("password", "", "password for the account")
	flag.Parse()

	if *username == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "usage: adduser -username NAME -password PASSWORD")
		os.Exit(2)
	}

	cfg := config.Load()
	ctx := context.Background()

	var cs store.ConversationStore
	var err error
	if cfg.DatabaseURL != "" {
		cs, err = store.NewPostgresStore(ctx, cfg.DatabaseURL)
	} else {
		cs, err = store.NewSQLiteStore(ctx, cfg.SQLitePath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening store: %v\n", err)
		os.Exit(1)
	}
	defer cs.Close()

	user := models.User{
		Username:     *username,
		PasswordHash: auth.HashPassword(*password),
	}
	if err := cs.AddUser(ctx, user); err != nil {
		fmt.Fprintf(os.Stderr, "adding user: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("user %q created\n", *username)
}
