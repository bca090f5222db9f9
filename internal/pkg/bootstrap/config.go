// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"os"
	"strings"
	"sync/atomic"

	"atlas/internal/pkg/logger"

	"gopkg.in/yaml.v3"
)

// Config 是所有服务共享的配置结构。
// 先从 yaml 文件（CONFIG_PATH）加载，再用环境变量覆盖，保证容器环境下无文件也能启动。
type Config struct {
	App struct {
		MaxBatchSize      int    `yaml:"maxBatchSize"`      // 批量操作单次上限
		PayWindowMinutes  int    `yaml:"payWindowMinutes"`  // 订单创建后的支付窗口
		PostPayCancelExpr string `yaml:"postPayCancelExpr"` // 支付后取消的 CEL 策略表达式
	} `yaml:"app"`

	Infra struct {
		Redis struct {
			Addr string `yaml:"addr"`
		} `yaml:"redis"`
		Mysql struct {
			User     string `yaml:"user"`
			Password string `yaml:"password"`
			Addr     string `yaml:"addr"`
			Database string `yaml:"database"`
		} `yaml:"mysql"`
		Kafka struct {
			Brokers     []string `yaml:"brokers"`
			StatusTopic string   `yaml:"statusTopic"`
		} `yaml:"kafka"`
		Zookeeper struct {
			Servers []string `yaml:"servers"`
		} `yaml:"zookeeper"`
		Jaeger struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"jaeger"`
		Nacos struct {
			ServerAddrs string `yaml:"serverAddrs"`
			Namespace   string `yaml:"namespace"`
			Group       string `yaml:"group"`
		} `yaml:"nacos"`
	} `yaml:"infra"`
}

var currentConfig atomic.Pointer[Config]

// Init 加载配置并初始化全局组件的前置状态。必须在 main 最开始调用。
func Init() {
	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Fatal().Err(err).Str("path", path).Msg("failed to read config file")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			logger.Fatal().Err(err).Str("path", path).Msg("failed to parse config file")
		}
	}

	applyEnvOverrides(cfg)
	currentConfig.Store(cfg)
}

// GetCurrentConfig 返回当前生效的配置。Init 之前调用会得到默认值。
func GetCurrentConfig() *Config {
	if cfg := currentConfig.Load(); cfg != nil {
		return cfg
	}
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	currentConfig.Store(cfg)
	return cfg
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.App.MaxBatchSize = 100
	cfg.App.PayWindowMinutes = 30
	cfg.App.PostPayCancelExpr = "paid_minutes <= 30"
	cfg.Infra.Redis.Addr = "localhost:6379"
	cfg.Infra.Mysql.User = "root"
	cfg.Infra.Mysql.Addr = "localhost:3306"
	cfg.Infra.Mysql.Database = "atlas_order"
	cfg.Infra.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Infra.Kafka.StatusTopic = "order-status-changed"
	cfg.Infra.Zookeeper.Servers = []string{"localhost:2181"}
	cfg.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	cfg.Infra.Nacos.ServerAddrs = "localhost:8848"
	cfg.Infra.Nacos.Group = "DEFAULT_GROUP"
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Infra.Redis.Addr = v
	}
	if v := os.Getenv("MYSQL_USER"); v != "" {
		cfg.Infra.Mysql.User = v
	}
	if v := os.Getenv("MYSQL_PASSWORD"); v != "" {
		cfg.Infra.Mysql.Password = v
	}
	if v := os.Getenv("MYSQL_ADDR"); v != "" {
		cfg.Infra.Mysql.Addr = v
	}
	if v := os.Getenv("MYSQL_DATABASE"); v != "" {
		cfg.Infra.Mysql.Database = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Infra.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("ZK_SERVERS"); v != "" {
		cfg.Infra.Zookeeper.Servers = strings.Split(v, ",")
	}
	if v := os.Getenv("JAEGER_ENDPOINT"); v != "" {
		cfg.Infra.Jaeger.Endpoint = v
	}
	if v := os.Getenv("NACOS_SERVER_ADDRS"); v != "" {
		cfg.Infra.Nacos.ServerAddrs = v
	}
	if v := os.Getenv("NACOS_NAMESPACE"); v != "" {
		cfg.Infra.Nacos.Namespace = v
	}
	if v := os.Getenv("NACOS_GROUP"); v != "" {
		cfg.Infra.Nacos.Group = v
	}
}
