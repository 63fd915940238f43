package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/bannerforge/bannerforge-api/internal/config"
	"github.com/bannerforge/bannerforge-api/internal/domain/credit"
	"github.com/bannerforge/bannerforge-api/internal/domain/generation"
	"github.com/bannerforge/bannerforge-api/internal/pkg/database"
	"github.com/bannerforge/bannerforge-api/internal/pkg/jwt"
)

// devtoken mints an access token for local testing and, with -balance,
// prints the user's current credit balance. -maintenance on|off flips the
// cluster-wide generation kill switch instead, in any environment.
func main() {
	userFlag := flag.String("user", "", "user id (random when empty)")
	tierFlag := flag.String("tier", "free", "tier: free or pro")
	ttl := flag.Duration("ttl", 0, "token lifetime (JWT_ACCESS_TTL when zero)")
	showBalance := flag.Bool("balance", false, "print the credit balance from the database")
	maintenance := flag.String("maintenance", "", "set the generation kill switch: on or off")
	flag.Parse()

	// Initialize config
	cfg := config.Load()

	if *maintenance != "" {
		if err := setMaintenance(cfg.RedisURL, *maintenance); err != nil {
			log.Fatal(err)
		}
		fmt.Println("maintenance:", *maintenance)
		return
	}

	if cfg.IsProduction() {
		log.Fatal("devtoken refuses to mint tokens with ENV=production")
	}

	userID := uuid.New()
	if *userFlag != "" {
		id, err := uuid.Parse(*userFlag)
		if err != nil {
			log.Fatalf("Invalid user id %q: %v", *userFlag, err)
		}
		userID = id
	}
	if *tierFlag != string(credit.TierFree) && *tierFlag != string(credit.TierPro) {
		log.Fatalf("Invalid tier %q", *tierFlag)
	}
	tier := credit.ParseTier(*tierFlag)

	lifetime := cfg.JWTAccessTTL
	if *ttl > 0 {
		lifetime = *ttl
	}

	token, err := jwt.NewService(cfg.JWTSecret, lifetime).GenerateAccessToken(userID, string(tier))
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}

	fmt.Println("user_id:", userID)
	fmt.Println("tier:   ", tier)
	fmt.Println("expires:", time.Now().Add(lifetime).Format(time.RFC3339))
	fmt.Println(token)

	if !*showBalance {
		return
	}

	// Connect to database
	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.ClosePostgres(db)

	ledger := credit.NewService(credit.NewRepository(db), credit.Limits{
		credit.TierFree: cfg.CreditsFreeDaily,
		credit.TierPro:  cfg.CreditsProDaily,
	})
	bal, err := ledger.Check(context.Background(), userID, tier)
	if err != nil {
		log.Fatalf("Failed to read balance: %v", err)
	}
	fmt.Printf("--- Credits ---\nremaining: %d/%d\nresets:    %s\n", bal.Remaining, bal.Limit, bal.ResetAt.Format(time.RFC3339))
	if bal.Degraded {
		fmt.Println("WARNING: ledger degraded, balance is a guess")
	}
}

func setMaintenance(redisURL, state string) error {
	var on bool
	switch state {
	case "on":
		on = true
	case "off":
	default:
		return fmt.Errorf("invalid -maintenance %q, want on or off", state)
	}

	client, err := database.NewRedis(redisURL)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	if client == nil {
		return errors.New("REDIS_URL is required for the runtime kill switch")
	}
	defer database.CloseRedis(client)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return generation.SetMaintenance(ctx, client, on)
}
