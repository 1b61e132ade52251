package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "judge.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config failed: %v", err)
	}
	return path
}

const minimalConfig = `
database:
  dsn: "root:pw@tcp(127.0.0.1:3306)/hsoj"
redis:
  addr: "127.0.0.1:6379"
minio:
  bucket: "judge-data"
judge:
  runCmd: "runner ${name} ${time_limit} ${memory_limit} ${output_limit} ${input} ${output}"
  languages:
    cpp:
      sourceExt: cpp
      compileCmd: "g++ -O2 ${name}.cpp -o ${name}"
`

func TestLoadAppConfigDefaults(t *testing.T) {
	cfg, err := loadAppConfig(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("load config failed: %v", err)
	}
	if cfg.Server.Addr != defaultHTTPAddr || cfg.Server.ReadTimeout != defaultReadTimeout {
		t.Fatalf("unexpected server defaults %+v", cfg.Server)
	}
	if cfg.Problem.Dir != defaultProblemDir || cfg.Problem.MetaTTL != defaultMetaTTL || cfg.Problem.Bucket != "judge-data" {
		t.Fatalf("unexpected problem defaults %+v", cfg.Problem)
	}
	if cfg.Judge.Workspace != defaultWorkspace || cfg.Worker.PoolSize != 1 {
		t.Fatalf("unexpected judge defaults %+v %+v", cfg.Judge, cfg.Worker)
	}
	if cfg.Redis.PoolSize == 0 {
		t.Fatalf("redis defaults were not applied")
	}
	if cfg.Kafka.Enabled() {
		t.Fatalf("kafka must be disabled without brokers")
	}
	if spec := cfg.Judge.Languages["cpp"]; spec.SourceExt != "cpp" || spec.CompileCmd == "" {
		t.Fatalf("unexpected language spec %+v", spec)
	}
}

func TestLoadAppConfigKafka(t *testing.T) {
	cfg, err := loadAppConfig(writeConfig(t, minimalConfig+`
kafka:
  brokers: ["127.0.0.1:9092"]
  topic: judge.tasks
  compression: zstd
  poolRetryBaseDelay: 2s
`))
	if err != nil {
		t.Fatalf("load config failed: %v", err)
	}
	if cfg.Kafka.RetryTopic != "judge.tasks" || cfg.Kafka.PoolRetryBase != 2*time.Second || cfg.Kafka.PoolRetryMax != 5 {
		t.Fatalf("unexpected kafka defaults %+v", cfg.Kafka)
	}
	if mqCfg := cfg.Kafka.toMQConfig(); mqCfg.Compression != kafka.Zstd || len(mqCfg.Brokers) != 1 {
		t.Fatalf("unexpected mq config %+v", mqCfg)
	}
}

func TestLoadAppConfigRejectsIncomplete(t *testing.T) {
	cases := []string{
		"redis:\n  addr: x\n",
		"database:\n  dsn: x\n",
		"database:\n  dsn: x\nredis:\n  addr: x\njudge:\n  languages:\n    c: {compileCmd: cc}\n",
		minimalConfig + "kafka:\n  brokers: [\"b:9092\"]\n",
	}
	for i, body := range cases {
		if _, err := loadAppConfig(writeConfig(t, body)); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestParseCompression(t *testing.T) {
	if parseCompression("GZIP") != kafka.Gzip || parseCompression("lz4") != kafka.Lz4 {
		t.Fatalf("unexpected compression mapping")
	}
	if parseCompression("none") != kafka.Compression(0) {
		t.Fatalf("unknown compression must be disabled")
	}
}
