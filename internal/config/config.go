package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log           LogConfig           `yaml:"log"`
	Cache         CacheConfig         `yaml:"cache"`
	ChatLLM       LLMConfig           `yaml:"chat_model"`
	EmbedLLM      LLMConfig           `yaml:"embed_model"`
	RAG           RAGConfig           `yaml:"rag"`
	VectorStore   VectorStoreConfig   `yaml:"vectorstore"`
	RecordManager RecordManagerConfig `yaml:"record_manager"`
	Audio         AudioConfig         `yaml:"audio"`
	VQA           VQAConfig           `yaml:"vqa"`
	Timeouts      TimeoutConfig       `yaml:"timeouts"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	// File receives logs in TUI mode, relative to the cache root.
	File string `yaml:"file"`
}

type CacheConfig struct {
	Root string `yaml:"root" validate:"required"`
}

// LLMConfig describes one langchaingo backend
type LLMConfig struct {
	// Provider is "ollama" or "openai" (any OpenAI-compatible server,
	// llama.cpp included).
	Provider string `yaml:"provider" validate:"oneof=ollama openai hash"`
	BaseURL  string `yaml:"base_url" validate:"omitempty,url"`
	Key      string `yaml:"key"`
	Model    string `yaml:"model" validate:"required"`
}

type RAGConfig struct {
	ChunkSize     int      `yaml:"chunk_size" validate:"gt=0"`
	ChunkOverlap  int      `yaml:"chunk_overlap" validate:"gte=0"`
	TopK          int      `yaml:"top_k" validate:"gt=0"`
	HistoryWindow int      `yaml:"history_window" validate:"gt=0"`
	Extensions    []string `yaml:"extensions" validate:"min=1,dive,startswith=."`
}

type VectorStoreConfig struct {
	Collection  string `yaml:"collection" validate:"required"`
	Compress    bool   `yaml:"compress"`
	KeepOnClose bool   `yaml:"keep_on_close"`
}

type RecordManagerConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver    string `yaml:"driver" validate:"oneof=sqlite postgres"`
	DSN       string `yaml:"dsn" validate:"required_if=Driver postgres"`
	Namespace string `yaml:"namespace"`
	Debug     bool   `yaml:"debug"`
}

type AudioConfig struct {
	FFmpegPath     string `yaml:"ffmpeg_path"`
	SampleRate     int    `yaml:"sample_rate" validate:"gt=0"`
	STTBaseURL     string `yaml:"stt_base_url" validate:"url"`
	STTKey         string `yaml:"stt_key"`
	STTModel       string `yaml:"stt_model"`
	STTLanguage    string `yaml:"stt_language"`
	TTSBaseURL     string `yaml:"tts_base_url" validate:"url"`
	TTSKey         string `yaml:"tts_key"`
	TTSModel       string `yaml:"tts_model"`
	TTSVoice       string `yaml:"tts_voice"`
	// SpeakResponses unset means speak whenever a TTS key is configured.
	SpeakResponses *bool  `yaml:"speak_responses"`
}

// Speak reports whether answers should be synthesized.
func (a AudioConfig) Speak() bool {
	if a.SpeakResponses != nil {
		return *a.SpeakResponses
	}
	return a.TTSKey != ""
}

type VQAConfig struct {
	// Provider is "ollama", "openai" or "gemini".
	Provider string `yaml:"provider" validate:"oneof=ollama openai gemini"`
	BaseURL  string `yaml:"base_url" validate:"omitempty,url"`
	Key      string `yaml:"key"`
	Model    string `yaml:"model"`
}

type TimeoutConfig struct {
	LLM        time.Duration `yaml:"llm"`
	Embedding  time.Duration `yaml:"embedding"`
	Speech     time.Duration `yaml:"speech"`
	Conversion time.Duration `yaml:"conversion"`
}

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
	defaultTopK         = 4
	defaultWindow       = 10
)

// LoadConfig reads the YAML file at path. A missing file yields the defaults.
// Environment overrides are applied last.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field values after defaults are applied.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Default returns a config that talks to a local Ollama server.
func Default() *Config {
	// zero is a valid overlap, so its default is set before unmarshalling
	cfg := &Config{RAG: RAGConfig{ChunkOverlap: defaultChunkOverlap}}
	applyDefaults(cfg)
	return cfg
}

func (c *Config) TempDir() string {
	return filepath.Join(c.Cache.Root, "temp_files")
}

func (c *Config) DatabaseDir() string {
	return filepath.Join(c.Cache.Root, "database")
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.File == "" {
		cfg.Log.File = "mediachat.log"
	}
	if cfg.Cache.Root == "" {
		cfg.Cache.Root = "./.cache"
	}
	if cfg.ChatLLM.Provider == "" {
		cfg.ChatLLM.Provider = "ollama"
	}
	if cfg.ChatLLM.Model == "" {
		cfg.ChatLLM.Model = "llama3.1:8b"
	}
	if cfg.EmbedLLM.Provider == "" {
		cfg.EmbedLLM.Provider = "ollama"
	}
	if cfg.EmbedLLM.Model == "" {
		cfg.EmbedLLM.Model = "nomic-embed-text:latest"
	}
	if cfg.RAG.ChunkSize <= 0 {
		cfg.RAG.ChunkSize = defaultChunkSize
	}
	if cfg.RAG.ChunkOverlap < 0 {
		cfg.RAG.ChunkOverlap = defaultChunkOverlap
	}
	if cfg.RAG.TopK <= 0 {
		cfg.RAG.TopK = defaultTopK
	}
	if cfg.RAG.HistoryWindow <= 0 {
		cfg.RAG.HistoryWindow = defaultWindow
	}
	if len(cfg.RAG.Extensions) == 0 {
		cfg.RAG.Extensions = []string{".pdf"}
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "pdf_documents"
	}
	if cfg.RecordManager.Driver == "" {
		cfg.RecordManager.Driver = "sqlite"
	}
	if cfg.RecordManager.Namespace == "" {
		cfg.RecordManager.Namespace = "chroma/" + cfg.VectorStore.Collection
	}
	if cfg.Audio.FFmpegPath == "" {
		cfg.Audio.FFmpegPath = "ffmpeg"
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.STTBaseURL == "" {
		cfg.Audio.STTBaseURL = "https://api.openai.com/v1"
	}
	if cfg.Audio.STTModel == "" {
		cfg.Audio.STTModel = "whisper-1"
	}
	if cfg.Audio.TTSBaseURL == "" {
		cfg.Audio.TTSBaseURL = "https://api.openai.com/v1"
	}
	if cfg.Audio.TTSModel == "" {
		cfg.Audio.TTSModel = "tts-1"
	}
	if cfg.Audio.TTSVoice == "" {
		cfg.Audio.TTSVoice = "alloy"
	}
	if cfg.VQA.Provider == "" {
		cfg.VQA.Provider = "ollama"
	}
	if cfg.VQA.Model == "" {
		if cfg.VQA.Provider == "gemini" {
			cfg.VQA.Model = "gemini-2.0-flash"
		} else {
			cfg.VQA.Model = "llava:7b"
		}
	}
	if cfg.Timeouts.LLM <= 0 {
		cfg.Timeouts.LLM = 2 * time.Minute
	}
	if cfg.Timeouts.Embedding <= 0 {
		cfg.Timeouts.Embedding = time.Minute
	}
	if cfg.Timeouts.Speech <= 0 {
		cfg.Timeouts.Speech = 2 * time.Minute
	}
	if cfg.Timeouts.Conversion <= 0 {
		cfg.Timeouts.Conversion = time.Minute
	}
}

// applyEnv lets secrets stay out of the YAML file.
func applyEnv(cfg *Config) {
	envString(&cfg.Cache.Root, "MEDIACHAT_CACHE_ROOT")
	envString(&cfg.ChatLLM.BaseURL, "MEDIACHAT_CHAT_BASE_URL")
	envString(&cfg.ChatLLM.Key, "MEDIACHAT_CHAT_KEY")
	envString(&cfg.EmbedLLM.BaseURL, "MEDIACHAT_EMBED_BASE_URL")
	envString(&cfg.EmbedLLM.Key, "MEDIACHAT_EMBED_KEY")
	envString(&cfg.RecordManager.DSN, "MEDIACHAT_RECORD_DSN")
	envString(&cfg.Audio.STTKey, "MEDIACHAT_STT_KEY")
	envString(&cfg.Audio.TTSKey, "MEDIACHAT_TTS_KEY")
	envString(&cfg.VQA.Key, "MEDIACHAT_VQA_KEY")
	if cfg.Audio.STTKey == "" {
		envString(&cfg.Audio.STTKey, "OPENAI_API_KEY")
	}
	if cfg.Audio.TTSKey == "" {
		envString(&cfg.Audio.TTSKey, "OPENAI_API_KEY")
	}
	if cfg.VQA.Key == "" {
		envString(&cfg.VQA.Key, "GOOGLE_API_KEY")
	}
}

func envString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}
