package svc

import (
	"fmt"
	"time"

	"github.com/fridaysatfour/wingman/internal/ai"
	"github.com/fridaysatfour/wingman/internal/config"
	"github.com/fridaysatfour/wingman/internal/db"
	"github.com/fridaysatfour/wingman/internal/flow"
	"github.com/fridaysatfour/wingman/internal/logging"
	"github.com/fridaysatfour/wingman/internal/memory"
)

// ServiceContext wires the whole service together: one database, one
// provider, and the memory pipeline and flow engine built on top of
// them. Handlers receive it and pass it to their logic.
type ServiceContext struct {
	Config config.Config

	DB         *db.Store
	Provider   ai.Provider
	Messages   *memory.MessageStore
	Summarizer *memory.Summarizer
	Assembler  *memory.Assembler
	Sweeper    *memory.Sweeper
	Engine     *flow.Engine
}

func NewServiceContext(c config.Config) (*ServiceContext, error) {
	store, err := db.Open(c.Database.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	provider, err := newProvider(c.AI)
	if err != nil {
		store.Close()
		return nil, err
	}
	logging.Infof("[svc] using %s provider", provider.ID())

	messages := memory.NewMessageStore(store, c.Memory)
	summarizer := memory.NewSummarizer(store, provider, c.Memory.BufferSize)
	messages.SetScheduler(summarizer)
	assembler := memory.NewAssembler(store, c.Memory)
	sweeper := memory.NewSweeper(store, summarizer, c.Memory.BufferSize)
	engine := flow.NewEngine(store, messages, assembler, provider, c.Flow, c.AI.MaxTokens)

	return &ServiceContext{
		Config:     c,
		DB:         store,
		Provider:   provider,
		Messages:   messages,
		Summarizer: summarizer,
		Assembler:  assembler,
		Sweeper:    sweeper,
		Engine:     engine,
	}, nil
}

func newProvider(c config.AIConfig) (ai.Provider, error) {
	switch c.Provider {
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("anthropic provider selected but ANTHROPIC_API_KEY is not set")
		}
		return ai.NewAnthropicProvider(c.AnthropicAPIKey, c.AnthropicModel, c.MaxRetries, c.RequestTimeout()), nil
	case "openai":
		if c.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider selected but OPENAI_API_KEY is not set")
		}
		return ai.NewOpenAIProvider(c.OpenAIAPIKey, c.OpenAIModel, c.MaxRetries, c.RequestTimeout()), nil
	}
	return nil, fmt.Errorf("unknown ai provider %q", c.Provider)
}

// StartSweeper launches the summarization catch-up sweep if configured.
func (s *ServiceContext) StartSweeper() {
	mins := s.Config.Memory.SweepIntervalMinutes
	if mins <= 0 {
		return
	}
	if err := s.Sweeper.Start(time.Duration(mins) * time.Minute); err != nil {
		logging.Warnf("[svc] sweeper failed to start: %v", err)
	}
}

// Close releases everything the context owns.
func (s *ServiceContext) Close() {
	if s.Sweeper != nil {
		s.Sweeper.Stop()
	}
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			logging.Warnf("[svc] error closing database: %v", err)
		}
	}
}
