package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"fx-backoffice/config"
	"fx-backoffice/internal/audit"
	"fx-backoffice/internal/auth"
	"fx-backoffice/internal/logging"
)

func main() {
	fmt.Println("========================================")
	fmt.Println(" Operator Administration Tool")
	fmt.Println("========================================")
	fmt.Println()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{Level: "warn", Output: "stderr"})

	db, err := audit.NewDB(cfg.DatabaseConfig)
	if err != nil {
		fmt.Printf("Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.RunMigrations(ctx); err != nil {
		fmt.Printf("Failed to run migrations: %v\n", err)
		os.Exit(1)
	}

	repo := audit.NewRepository(db)
	passwords := auth.NewPasswordManager(cfg.AuthConfig.BcryptCost, cfg.AuthConfig.MinPasswordLength)
	jwt := auth.NewJWTManager("operator-admin-unused", time.Minute)
	service := auth.NewService(repo, jwt, passwords, logger)

	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Println("\nOptions:")
		fmt.Println("  1. Create operator")
		fmt.Println("  2. List operators")
		fmt.Println("  3. Exit")
		fmt.Print("\nSelect option: ")

		input, _ := reader.ReadString('\n')
		input = strings.TrimSpace(input)

		switch input {
		case "1":
			createOperator(ctx, reader, service)
		case "2":
			listOperators(ctx, repo)
		case "3":
			fmt.Println("Goodbye!")
			os.Exit(0)
		default:
			fmt.Println("Invalid option")
		}
	}
}

func createOperator(ctx context.Context, reader *bufio.Reader, service *auth.Service) {
	fmt.Println("\n--- Create Operator ---")

	fmt.Print("Email: ")
	email, _ := reader.ReadString('\n')
	email = strings.TrimSpace(email)

	fmt.Print("Name: ")
	name, _ := reader.ReadString('\n')
	name = strings.TrimSpace(name)

	fmt.Print("Password: ")
	password, _ := reader.ReadString('\n')
	password = strings.TrimSpace(password)

	fmt.Print("Admin? (y/n): ")
	adminInput, _ := reader.ReadString('\n')
	isAdmin := strings.TrimSpace(strings.ToLower(adminInput)) == "y"

	op, err := service.CreateOperator(ctx, email, password, name, isAdmin)
	if err != nil {
		fmt.Printf("Failed to create operator: %v\n", err)
		return
	}

	fmt.Println("\n========================================")
	fmt.Printf("  Operator ID: %s\n", op.ID)
	fmt.Printf("  Email:       %s\n", op.Email)
	fmt.Printf("  Admin:       %v\n", op.IsAdmin)
	fmt.Printf("  Created:     %s\n", op.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Println("========================================")
}

func listOperators(ctx context.Context, repo *audit.Repository) {
	operators, err := repo.ListOperators(ctx)
	if err != nil {
		fmt.Printf("Failed to list operators: %v\n", err)
		return
	}

	if len(operators) == 0 {
		fmt.Println("\nNo operators found")
		return
	}

	fmt.Println("\n========================================")
	for _, op := range operators {
		role := "operator"
		if op.IsAdmin {
			role = "admin"
		}
		lastLogin := "never"
		if op.LastLoginAt != nil {
			lastLogin = op.LastLoginAt.Format("2006-01-02 15:04")
		}
		fmt.Printf("  %s  %-30s %-8s last login: %s\n", op.ID, op.Email, role, lastLogin)
	}
	fmt.Println("========================================")
}
