package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"jobboard/internal/account"
	"jobboard/internal/auth"
	"jobboard/internal/config"
	"jobboard/internal/database"
	"jobboard/internal/logging"
	"jobboard/internal/recommend"
	"jobboard/internal/savedsearch"
	"jobboard/internal/storage"
	"jobboard/internal/tasks"
	"jobboard/internal/worker"
)

func newCreateAccountCmd() *cobra.Command {
	var in account.NewAccount
	cmd := &cobra.Command{
		Use:   "create-account",
		Short: "创建账号并初始化资料，随机密码只显示一次",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(in.Username) == "" {
				return errors.New("missing required flag: --username")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openDatabase(cfg)
			if err != nil {
				return err
			}

			var existing int64
			if err := db.Model(&database.Account{}).Where("username = ?", in.Username).Count(&existing).Error; err != nil {
				return fmt.Errorf("query account: %w", err)
			}
			if existing > 0 {
				return fmt.Errorf("account %q already exists", in.Username)
			}

			in.Password, err = generateRandomPassword(24)
			if err != nil {
				return err
			}
			acct, err := account.CreateAccount(cmd.Context(), db, in)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "已创建账号（ID %d）：\n", acct.ID)
			fmt.Fprintf(out, "用户名: %s\n", acct.Username)
			fmt.Fprintf(out, "初始密码: %s\n", in.Password)
			fmt.Fprintf(out, "提示：该密码仅显示一次。\n")
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.Username, "username", "", "用户名（必填）")
	f.StringVar(&in.Email, "email", "", "邮箱")
	f.StringVar(&in.FirstName, "first-name", "", "名")
	f.StringVar(&in.LastName, "last-name", "", "姓")
	f.BoolVar(&in.IsRecruiter, "recruiter", false, "创建招聘方账号")
	f.BoolVar(&in.IsStaff, "staff", false, "创建 staff 账号")
	return cmd
}

func newIssueTokenCmd() *cobra.Command {
	var userID uint
	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "为账号签发访问令牌，需要配置 JWT 私钥",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID == 0 {
				return errors.New("missing required flag: --user-id")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			actor, err := account.LoadActor(cmd.Context(), db, userID)
			if err != nil {
				return err
			}
			if !actor.IsActive {
				return fmt.Errorf("account %d is inactive", userID)
			}

			if strings.TrimSpace(cfg.Auth.PrivateKeyPath) == "" {
				return errors.New("jwt private key path is not configured (JWT_PRIVATE_KEY_PATH)")
			}
			privatePEM, err := os.ReadFile(cfg.Auth.PrivateKeyPath)
			if err != nil {
				return fmt.Errorf("read jwt private key: %w", err)
			}
			publicPEM, err := os.ReadFile(cfg.Auth.PublicKeyPath)
			if err != nil {
				return fmt.Errorf("read jwt public key: %w", err)
			}
			svc, err := auth.NewAuthService(privatePEM, publicPEM, cfg.Auth.AccessTokenTTL)
			if err != nil {
				return err
			}
			token, err := svc.IssueAccessToken(userID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().UintVar(&userID, "user-id", 0, "账号 ID（必填）")
	return cmd
}

// queueDeps 是需要投递任务的命令共用的连接。
type queueDeps struct {
	db         *gorm.DB
	redis      *redis.Client
	client     *asynq.Client
	dispatcher *tasks.Dispatcher
}

func (d *queueDeps) Close() {
	_ = d.client.Close()
	_ = d.redis.Close()
}

func openQueue(ctx context.Context, cfg *config.Config) (*queueDeps, error) {
	db, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr()})
	logger := logging.New(cfg.Log, "admin")
	return &queueDeps{
		db:         db,
		redis:      redisClient,
		client:     client,
		dispatcher: tasks.NewDispatcher(client, tasks.NewRedisGenerations(redisClient), cfg.Worker.MaxRetry, logger),
	}, nil
}

func newRefreshAllCmd() *cobra.Command {
	var jobsOnly, candidatesOnly bool
	cmd := &cobra.Command{
		Use:   "refresh-all",
		Short: "为所有职位与候选人请求推荐重算",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if jobsOnly && candidatesOnly {
				return errors.New("--jobs-only and --candidates-only are mutually exclusive")
			}
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			q, err := openQueue(ctx, cfg)
			if err != nil {
				return err
			}
			defer q.Close()

			jobs, candidates, err := refreshAll(ctx, q.db, q.dispatcher, !candidatesOnly, !jobsOnly)
			fmt.Fprintf(cmd.OutOrStdout(), "queued %d job(s) and %d candidate(s)\n", jobs, candidates)
			return err
		},
	}
	cmd.Flags().BoolVar(&jobsOnly, "jobs-only", false, "只重算职位的候选人推荐")
	cmd.Flags().BoolVar(&candidatesOnly, "candidates-only", false, "只重算候选人的职位推荐")
	return cmd
}

// refreshAll 逐个入队，遇到第一个错误即停止并返回已入队数。
func refreshAll(ctx context.Context, db *gorm.DB, scheduler recommend.Scheduler, jobs, candidates bool) (int, int, error) {
	var jobCount, candidateCount int
	if jobs {
		var ids []uint
		if err := db.WithContext(ctx).Model(&database.Job{}).Order("id").Pluck("id", &ids).Error; err != nil {
			return 0, 0, fmt.Errorf("list jobs: %w", err)
		}
		for _, id := range ids {
			if err := scheduler.RegenerateJob(ctx, id); err != nil {
				return jobCount, 0, err
			}
			jobCount++
		}
	}
	if candidates {
		var ids []uint
		err := db.WithContext(ctx).Model(&database.Profile{}).
			Joins("JOIN accounts ON accounts.id = profiles.user_id").
			Where("profiles.is_recruiter = ? AND accounts.is_active = ? AND accounts.is_staff = ?", false, true, false).
			Order("profiles.user_id").
			Pluck("profiles.user_id", &ids).Error
		if err != nil {
			return jobCount, 0, fmt.Errorf("list candidates: %w", err)
		}
		for _, id := range ids {
			if err := scheduler.RegenerateCandidate(ctx, id); err != nil {
				return jobCount, candidateCount, err
			}
			candidateCount++
		}
	}
	return jobCount, candidateCount, nil
}

func newRunSavedSearchesCmd() *cobra.Command {
	var inline bool
	cmd := &cobra.Command{
		Use:   "run-saved-searches",
		Short: "执行所有启用的保存搜索（默认入队，--inline 在本进程执行）",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if inline {
				db, err := openDatabase(cfg)
				if err != nil {
					return err
				}
				searches := savedsearch.NewService(db, nil, logging.New(cfg.Log, "admin"))
				ids, err := searches.ActiveSearchIDs(ctx)
				if err != nil {
					return err
				}
				total := 0
				for _, id := range ids {
					n, err := searches.Run(ctx, id)
					if err != nil {
						return fmt.Errorf("run saved search %d: %w", id, err)
					}
					fmt.Fprintf(out, "search %d: %d new match(es)\n", id, n)
					total += n
				}
				fmt.Fprintf(out, "ran %d search(es), %d new match(es)\n", len(ids), total)
				return nil
			}

			q, err := openQueue(ctx, cfg)
			if err != nil {
				return err
			}
			defer q.Close()
			searches := savedsearch.NewService(q.db, nil, nil)
			scheduler, err := worker.NewScheduler(cfg.SavedSearch.Schedule, searches, q.dispatcher, nil)
			if err != nil {
				return err
			}
			n, err := scheduler.EnqueueAll(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "queued %d saved search(es)\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&inline, "inline", false, "在本进程同步执行，不经过队列")
	return cmd
}

func newCheckResumesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-resumes",
		Short: "列出简历对象已不在存储中的资料",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.MinIO.Enabled() {
				return errors.New("object storage is not configured (MINIO_ENDPOINT)")
			}
			db, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			client, err := storage.NewClient(cfg.MinIO)
			if err != nil {
				return err
			}

			missing, checked, err := findMissingResumes(cmd.Context(), db, client)
			out := cmd.OutOrStdout()
			for _, p := range missing {
				fmt.Fprintf(out, "user %d: missing object %s\n", p.UserID, p.ResumeObjectKey)
			}
			fmt.Fprintf(out, "checked %d resume(s), %d missing\n", checked, len(missing))
			return err
		},
	}
}

type objectChecker interface {
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
}

func findMissingResumes(ctx context.Context, db *gorm.DB, checker objectChecker) ([]database.Profile, int, error) {
	var (
		missing []database.Profile
		checked int
		batch   []database.Profile
	)
	err := db.WithContext(ctx).
		Select("id", "user_id", "resume_object_key").
		Where("resume_object_key <> ?", "").
		FindInBatches(&batch, 200, func(tx *gorm.DB, _ int) error {
			for _, p := range batch {
				ok, err := checker.ObjectExists(ctx, p.ResumeObjectKey)
				if err != nil {
					return err
				}
				checked++
				if !ok {
					missing = append(missing, p)
				}
			}
			return nil
		}).Error
	return missing, checked, err
}
