package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"jobboard/internal/config"
	"jobboard/internal/database"
)

// dbFlags 覆盖环境变量中的数据库配置，便于在运维机上临时指向其他实例。
type dbFlags struct {
	host     string
	port     int
	name     string
	user     string
	password string
	sslmode  string
}

var (
	overrides dbFlags

	rootCmd = &cobra.Command{
		Use:           "jobboard-admin",
		Short:         "jobboard 运维命令：账号、令牌、推荐重算与保存搜索",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&overrides.host, "db-host", "", "数据库 Host（可选，默认读 DATABASE_HOST）")
	flags.IntVar(&overrides.port, "db-port", 0, "数据库 Port（可选，默认读 DATABASE_PORT）")
	flags.StringVar(&overrides.name, "db-name", "", "数据库名（可选，默认读 POSTGRES_DB）")
	flags.StringVar(&overrides.user, "db-user", "", "数据库用户（可选，默认读 POSTGRES_USER）")
	flags.StringVar(&overrides.password, "db-password", "", "数据库密码（可选，默认读 POSTGRES_PASSWORD）")
	flags.StringVar(&overrides.sslmode, "db-sslmode", "", "数据库 SSLMODE（可选，默认读 DATABASE_SSLMODE）")

	rootCmd.AddCommand(
		newCreateAccountCmd(),
		newIssueTokenCmd(),
		newRefreshAllCmd(),
		newRunSavedSearchesCmd(),
		newCheckResumesCmd(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig 读取环境配置并应用命令行覆盖。
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyOverrides(&cfg.Database, overrides)
	return cfg, nil
}

func applyOverrides(db *config.DatabaseConfig, f dbFlags) {
	if v := strings.TrimSpace(f.host); v != "" {
		db.Host = v
	}
	if f.port > 0 {
		db.Port = f.port
	}
	if v := strings.TrimSpace(f.name); v != "" {
		db.Name = v
	}
	if v := strings.TrimSpace(f.user); v != "" {
		db.User = v
	}
	if f.password != "" {
		db.Password = f.password
	}
	if v := strings.TrimSpace(f.sslmode); v != "" {
		db.SSLMode = v
	}
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return db, nil
}

func generateRandomPassword(bytesLen int) (string, error) {
	if bytesLen <= 0 {
		bytesLen = 24
	}
	buf := make([]byte, bytesLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
