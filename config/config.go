package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
		Addr string `yaml:"-"` // 不从配置文件读取，而是在加载后计算
	} `yaml:"server"`
	OpenAI struct {
		APIKey        string  `yaml:"api_key"`
		BaseURL       string  `yaml:"base_url"`
		Model         string  `yaml:"model"`
		EmbedModel    string  `yaml:"embed_model"`
		EmbedDim      int     `yaml:"embed_dim"`       // 嵌入向量维度
		MaxInputChars int     `yaml:"max_input_chars"` // 嵌入输入最大字符数，超出部分截断
		MaxTokens     int     `yaml:"max_tokens"`      // 生成最大token数
		Temperature   float64 `yaml:"temperature"`
		TimeoutSec    int     `yaml:"timeout_sec"`        // 单次生成请求超时，单位：秒
		StreamTimeout int     `yaml:"stream_timeout_sec"` // 流式生成整体超时，单位：秒
		MaxRetries    int     `yaml:"max_retries"`        // 生成请求最大尝试次数
	} `yaml:"openai"`
	Log struct {
		Level    string `yaml:"level"`
		Format   string `yaml:"format"`
		Output   string `yaml:"output"`
		FilePath string `yaml:"file_path"`
	} `yaml:"log"`

	DB struct {
		Host            string `yaml:"host"`
		Port            int    `yaml:"port"`
		Username        string `yaml:"username"`
		Password        string `yaml:"password"`
		Database        string `yaml:"database"`
		Charset         string `yaml:"charset"`
		ParseTime       bool   `yaml:"parse_time"`
		DSN             string `yaml:"-"`                 // 不从配置文件读取，而是在加载后计算
		MaxOpenConns    int    `yaml:"max_open_conns"`    // 最大打开连接数
		MaxIdleConns    int    `yaml:"max_idle_conns"`    // 最大空闲连接数
		ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // 连接最大生命周期（分钟）
	} `yaml:"database"`
	Scoring struct {
		MinQuerySim    float64 `yaml:"min_query_sim"`    // 相关性硬下限
		StrongQuerySim float64 `yaml:"strong_query_sim"` // 强匹配阈值
		LambdaQuery    float64 `yaml:"lambda_query"`     // 查询相似度权重
		LambdaPersonal float64 `yaml:"lambda_personal"`  // 个性化权重
		LambdaDislike  float64 `yaml:"lambda_dislike"`   // 不喜欢内容的惩罚权重
		DislikeAlpha   float64 `yaml:"dislike_alpha"`    // 画像重算时不喜欢向量的衰减系数
		DefaultLimit   int     `yaml:"default_limit"`    // 默认返回条数
	} `yaml:"scoring"`
	Survey struct {
		StartWeight float64 `yaml:"start_weight"` // 问卷向量初始权重
		FloorWeight float64 `yaml:"floor_weight"` // 问卷向量权重下限
		DecayStep   float64 `yaml:"decay_step"`   // 每次交互的权重衰减量
	} `yaml:"survey"`
	EmbedCache struct {
		TTLSec     int `yaml:"ttl_sec"`     // 查询嵌入缓存有效期，单位：秒
		MaxEntries int `yaml:"max_entries"` // 缓存条目上限
	} `yaml:"embed_cache"`
	Guardrail struct {
		Policy string `yaml:"policy"` // broad_parenting / strict_learning_domains
	} `yaml:"guardrail"`
	Stream struct {
		AuthToken string `yaml:"auth_token"` // 流式连接的一次性鉴权token
	} `yaml:"stream"`
	Scheduler struct {
		CheckIntervalSec int `yaml:"check_interval_sec"` // 调度器检查间隔（秒）
		RefreshHour      int `yaml:"refresh_hour"`       // 每天刷新画像的小时（0-23）
		RefreshMinute    int `yaml:"refresh_minute"`     // 每天刷新画像的分钟（0-59）
	} `yaml:"scheduler"`
}

// applyDefaults 为未配置的参数填入默认值
// 打分相关常数来源于线上调参经验，均可通过配置覆盖
func (cfg *Config) applyDefaults() {
	if cfg.Scoring.MinQuerySim <= 0 {
		cfg.Scoring.MinQuerySim = 0.40
	}
	if cfg.Scoring.StrongQuerySim <= 0 {
		cfg.Scoring.StrongQuerySim = 0.55
	}
	if cfg.Scoring.LambdaQuery <= 0 {
		cfg.Scoring.LambdaQuery = 0.65
	}
	if cfg.Scoring.LambdaPersonal <= 0 {
		cfg.Scoring.LambdaPersonal = 0.35
	}
	if cfg.Scoring.LambdaDislike <= 0 {
		cfg.Scoring.LambdaDislike = 0.25
	}
	if cfg.Scoring.DislikeAlpha <= 0 {
		cfg.Scoring.DislikeAlpha = 0.6
	}
	if cfg.Scoring.DefaultLimit <= 0 {
		cfg.Scoring.DefaultLimit = 5
	}
	if cfg.Survey.StartWeight <= 0 {
		cfg.Survey.StartWeight = 0.7
	}
	if cfg.Survey.FloorWeight <= 0 {
		cfg.Survey.FloorWeight = 0.3
	}
	if cfg.Survey.DecayStep <= 0 {
		cfg.Survey.DecayStep = 0.02
	}
	if cfg.EmbedCache.TTLSec <= 0 {
		cfg.EmbedCache.TTLSec = 300
	}
	if cfg.EmbedCache.MaxEntries <= 0 {
		cfg.EmbedCache.MaxEntries = 1024
	}
	if cfg.OpenAI.TimeoutSec <= 0 {
		cfg.OpenAI.TimeoutSec = 8
	}
	if cfg.OpenAI.StreamTimeout <= 0 {
		cfg.OpenAI.StreamTimeout = 25
	}
	if cfg.OpenAI.MaxRetries <= 0 {
		cfg.OpenAI.MaxRetries = 3
	}
	if cfg.OpenAI.MaxTokens <= 0 {
		cfg.OpenAI.MaxTokens = 1200
	}
	if cfg.OpenAI.EmbedDim <= 0 {
		cfg.OpenAI.EmbedDim = 1536
	}
	if cfg.OpenAI.MaxInputChars <= 0 {
		cfg.OpenAI.MaxInputChars = 8000
	}
	if cfg.OpenAI.BaseURL == "" {
		cfg.OpenAI.BaseURL = "https://api.openai.com"
	}
	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = "gpt-4o-mini"
	}
	if cfg.OpenAI.EmbedModel == "" {
		cfg.OpenAI.EmbedModel = "text-embedding-3-small"
	}
	if cfg.Scheduler.CheckIntervalSec <= 0 {
		cfg.Scheduler.CheckIntervalSec = 60
	}
	if cfg.Guardrail.Policy == "" {
		cfg.Guardrail.Policy = "broad_parenting"
	}
}

func Load() *Config {
	// 首先尝试加载.env文件中的环境变量
	_ = godotenv.Load() // 忽略错误，如果.env文件不存在，继续使用系统环境变量

	var cfg Config

	// 尝试从config.yaml文件加载配置
	if data, err := os.ReadFile("config.yaml"); err == nil {
		err = yaml.Unmarshal(data, &cfg)
		if err != nil {
			log.Printf("Error loading config.yaml: %v, falling back to environment variables", err)
			return loadFromEnv()
		}
		log.Println("Loading configuration from config.yaml")

		// 计算 Server.Addr 字段
		cfg.Server.Addr = fmt.Sprintf(":%d", cfg.Server.Port)

		// 从环境变量中加载敏感信息
		// 数据库用户名和密码
		if envUsername := os.Getenv("DATABASE_USERNAME"); envUsername != "" {
			cfg.DB.Username = envUsername
		}
		if envPassword := os.Getenv("DATABASE_PASSWORD"); envPassword != "" {
			cfg.DB.Password = envPassword
		}

		// OpenAI API密钥
		if envAPIKey := os.Getenv("OPENAI_API_KEY"); envAPIKey != "" {
			cfg.OpenAI.APIKey = envAPIKey
		}

		// 流式连接鉴权token
		if envToken := os.Getenv("STREAM_AUTH_TOKEN"); envToken != "" {
			cfg.Stream.AuthToken = envToken
		}

		// 计算 DB.DSN 字段
		if cfg.DB.DSN == "" {
			// 设置默认值
			if cfg.DB.Charset == "" {
				cfg.DB.Charset = "utf8mb4"
			}

			// 构建DSN
			parseTime := ""
			if cfg.DB.ParseTime {
				parseTime = "&parseTime=true"
			}

			cfg.DB.DSN = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s%s",
				cfg.DB.Username,
				cfg.DB.Password,
				cfg.DB.Host,
				cfg.DB.Port,
				cfg.DB.Database,
				cfg.DB.Charset,
				parseTime)
		}

		cfg.applyDefaults()
		return &cfg
	}

	// 如果config.yaml不存在，则完全从环境变量加载配置
	return loadFromEnv()
}

func loadFromEnv() *Config {
	// 当config.yaml加载失败时，创建一个最小配置
	var cfg Config

	// 设置服务器地址
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	cfg.Server.Addr = fmt.Sprintf(":%d", cfg.Server.Port)

	// 只从环境变量中加载敏感信息
	// 数据库配置
	if username := os.Getenv("DATABASE_USERNAME"); username != "" {
		cfg.DB.Username = username
	}
	if password := os.Getenv("DATABASE_PASSWORD"); password != "" {
		cfg.DB.Password = password
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		cfg.DB.DSN = dsn
	} else if cfg.DB.Host != "" {
		// 只有在没有直接提供DSN且有主机信息时才构建DSN
		parseTime := ""
		if cfg.DB.ParseTime {
			parseTime = "&parseTime=true"
		}
		cfg.DB.DSN = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s%s",
			cfg.DB.Username,
			cfg.DB.Password,
			cfg.DB.Host,
			cfg.DB.Port,
			cfg.DB.Database,
			cfg.DB.Charset,
			parseTime)
	}

	// OpenAI API密钥
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		cfg.OpenAI.APIKey = apiKey
	}

	// 流式连接鉴权token
	if token := os.Getenv("STREAM_AUTH_TOKEN"); token != "" {
		cfg.Stream.AuthToken = token
	}

	log.Println("配置从环境变量加载，部分配置可能缺失")
	cfg.applyDefaults()
	return &cfg
}
