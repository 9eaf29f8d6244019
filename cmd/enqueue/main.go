package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"storyteller/internal/adapter/repo"
	"storyteller/internal/domain"
	"storyteller/internal/infra"
	"storyteller/internal/intake"
	"storyteller/internal/pricing"
	"storyteller/internal/queue/transport"
)

// enqueue submits a new story order, or with -story republishes the job
// reference of an existing queued story.
func main() {
	var (
		storyFlag  string
		userFlag   string
		childFlag  string
		themeFlag  string
		moodFlag   string
		lengthFlag string
		lessonFlag string
	)
	flag.StringVar(&storyFlag, "story", "", "existing story ID to publish again")
	flag.StringVar(&userFlag, "user", "", "owning user ID (UUID)")
	flag.StringVar(&childFlag, "child", "", "child profile ID (UUID)")
	flag.StringVar(&themeFlag, "theme", "", "story theme")
	flag.StringVar(&moodFlag, "mood", string(domain.MoodCalm), "mood (nyugodt, vidam, kalandos, almos)")
	flag.StringVar(&lengthFlag, "length", string(domain.LengthShort), "length (short, medium, long)")
	flag.StringVar(&lessonFlag, "lesson", "", "optional lesson")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		exitWithError(err)
	}
	logger := infra.NewLogger("cli").With().Str("cmd", "enqueue").Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		exitWithError(err)
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	tr, err := transport.Open(ctx, cfg, runner, logger)
	if err != nil {
		exitWithError(fmt.Errorf("failed to open queue: %w", err))
	}
	defer tr.Close()

	stories := repo.NewStoryRepository(runner)

	if id := strings.TrimSpace(storyFlag); id != "" {
		story, err := stories.GetStory(ctx, id)
		if err != nil {
			exitWithError(fmt.Errorf("failed to load story: %w", err))
		}
		if story.Status != domain.StoryStatusQueued {
			exitWithError(fmt.Errorf("story %s is %s, only queued stories can be published", id, story.Status))
		}
		if err := tr.Publisher.Publish(ctx, id); err != nil {
			exitWithError(err)
		}
		fmt.Printf("Story %s published to %s\n", id, tr.Driver)
		return
	}

	if userFlag == "" || childFlag == "" {
		exitWithError(errors.New("-user and -child are required for a new story"))
	}
	svc, err := intake.NewService(stories, pricing.NewCache(stories, cfg.PricingTTL), tr.Publisher, logger)
	if err != nil {
		exitWithError(err)
	}
	story, err := svc.Submit(ctx, intake.Request{
		UserID:  strings.TrimSpace(userFlag),
		ChildID: strings.TrimSpace(childFlag),
		Theme:   themeFlag,
		Mood:    domain.Mood(strings.ToLower(strings.TrimSpace(moodFlag))),
		Length:  domain.Length(strings.ToLower(strings.TrimSpace(lengthFlag))),
		Lesson:  lessonFlag,
	})
	if err != nil {
		exitWithError(err)
	}
	fmt.Printf("Story %s queued (cost %d credits)\n", story.ID, story.CreditCost)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
