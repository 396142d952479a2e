// マイグレーションをサーバー起動と切り離して適用するためのコマンド
package main

import (
	"context"
	"log"
	"time"

	"press-pass-server/internal/infrastructure/config"
	"press-pass-server/internal/infrastructure/persistence/mysql"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := mysql.NewDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := mysql.NewMigrator(db.DB).Up(ctx); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	log.Println("Migrations applied")
}
