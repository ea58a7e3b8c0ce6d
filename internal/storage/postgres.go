package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"engagement-tracker/internal/config"
	"engagement-tracker/pkg/types"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// DB is the postgres-backed Store.
type DB struct {
	conn   *sql.DB
	logger *logrus.Logger
}

var _ Store = (*DB)(nil)

func NewConnection(cfg *config.DatabaseConfig, logger *logrus.Logger) (*DB, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	logger.Infof("Connecting to database: host=%s port=%d dbname=%s user=%s",
		cfg.Host, cfg.Port, cfg.Name, cfg.User)

	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{
		conn:   conn,
		logger: logger,
	}

	logger.Info("Database connection established")
	return db, nil
}

func (db *DB) RunMigrations() error {
	db.logger.Info("Running database migrations...")

	migrationFiles, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("failed to find migration files: %w", err)
	}
	sort.Strings(migrationFiles)

	for _, file := range migrationFiles {
		db.logger.Infof("Running migration: %s", file)

		content, err := migrationFS.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}

		if _, err := db.conn.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", file, err)
		}
	}

	db.logger.Info("Migrations completed successfully")
	return nil
}

func (db *DB) ReadIdentities() ([]types.Identity, error) {
	rows, err := db.conn.Query(`
        SELECT username, platform
        FROM identities
        WHERE active = true
        ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("failed to query identities: %w", err)
	}
	defer rows.Close()

	var identities []types.Identity
	for rows.Next() {
		var username, platform string
		if err := rows.Scan(&username, &platform); err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		p, err := types.ParsePlatform(platform)
		if err != nil {
			db.logger.Warnf("skipping identity %s: %v", username, err)
			continue
		}
		identities = append(identities, types.NewIdentity(username, p))
	}

	return identities, rows.Err()
}

func (db *DB) ReadExistingPosts(identity types.Identity) ([]types.Post, error) {
	rows, err := db.conn.Query(`
        SELECT username, platform, post_link, posted_date, likes, comments, views
        FROM posts
        WHERE username = $1 AND platform = $2
        ORDER BY posted_date DESC`,
		identity.Username, string(identity.Platform))
	if err != nil {
		return nil, fmt.Errorf("failed to query posts for %s: %w", identity, err)
	}
	defer rows.Close()

	return scanPosts(rows)
}

func (db *DB) AppendPosts(posts []types.Post) error {
	for _, post := range posts {
		_, err := db.conn.Exec(`
            INSERT INTO posts (
                username, platform, post_link, posted_date, likes, comments, views, scraped_at
            ) VALUES (
                $1, $2, $3, $4, $5, $6, $7, NOW()
            ) ON CONFLICT (post_link) DO UPDATE SET
                posted_date = COALESCE(EXCLUDED.posted_date, posts.posted_date),
                likes = EXCLUDED.likes,
                comments = EXCLUDED.comments,
                views = EXCLUDED.views,
                scraped_at = EXCLUDED.scraped_at`,
			post.Username, string(post.Platform), post.PostLink,
			nullTime(post.PostedDate), post.Likes, post.Comments, nullInt64(post.Views),
		)
		if err != nil {
			return fmt.Errorf("failed to insert post %s: %w", post.PostLink, err)
		}
	}
	return nil
}

func (db *DB) UpdateExistingPosts(posts []types.Post) error {
	for _, post := range posts {
		_, err := db.conn.Exec(`
            UPDATE posts SET
                posted_date = COALESCE($2, posted_date),
                likes = $3,
                comments = $4,
                views = $5,
                scraped_at = NOW()
            WHERE post_link = $1`,
			post.PostLink, nullTime(post.PostedDate), post.Likes, post.Comments, nullInt64(post.Views),
		)
		if err != nil {
			return fmt.Errorf("failed to update post %s: %w", post.PostLink, err)
		}
	}
	return nil
}

func (db *DB) UpdateAverageViews(identity types.Identity, avg *int64) error {
	_, err := db.conn.Exec(`
        UPDATE identities SET
            average_views = $3,
            last_tracked_at = NOW()
        WHERE username = $1 AND platform = $2`,
		identity.Username, string(identity.Platform), nullInt64(avg),
	)
	if err != nil {
		return fmt.Errorf("failed to update average views for %s: %w", identity, err)
	}
	return nil
}

// GetRecentPosts returns the most recently posted entries across all
// identities, for the reporting API.
func (db *DB) GetRecentPosts(limit int) ([]types.Post, error) {
	rows, err := db.conn.Query(`
        SELECT username, platform, post_link, posted_date, likes, comments, views
        FROM posts
        ORDER BY posted_date DESC NULLS LAST
        LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent posts: %w", err)
	}
	defer rows.Close()

	return scanPosts(rows)
}

// IdentitySummary is one reporting row: identity plus its stored rolling
// average and post count.
type IdentitySummary struct {
	Username      string  `json:"username"`
	Platform      string  `json:"platform"`
	AverageViews  *int64  `json:"average_views"`
	PostCount     int     `json:"post_count"`
	LastTrackedAt *string `json:"last_tracked_at"`
}

func (db *DB) GetIdentitySummaries() ([]IdentitySummary, error) {
	rows, err := db.conn.Query(`
        SELECT i.username, i.platform, i.average_views, i.last_tracked_at::text,
               COUNT(p.post_link) AS post_count
        FROM identities i
        LEFT JOIN posts p ON p.username = i.username AND p.platform = i.platform
        WHERE i.active = true
        GROUP BY i.username, i.platform, i.average_views, i.last_tracked_at
        ORDER BY i.username`)
	if err != nil {
		return nil, fmt.Errorf("failed to query identity summaries: %w", err)
	}
	defer rows.Close()

	var summaries []IdentitySummary
	for rows.Next() {
		var s IdentitySummary
		var avg sql.NullInt64
		var tracked sql.NullString
		if err := rows.Scan(&s.Username, &s.Platform, &avg, &tracked, &s.PostCount); err != nil {
			return nil, fmt.Errorf("failed to scan identity summary: %w", err)
		}
		if avg.Valid {
			s.AverageViews = &avg.Int64
		}
		if tracked.Valid {
			s.LastTrackedAt = &tracked.String
		}
		summaries = append(summaries, s)
	}

	return summaries, rows.Err()
}

// GetTrackingStats returns aggregate reporting statistics.
func (db *DB) GetTrackingStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var totalPosts int
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM posts").Scan(&totalPosts); err != nil {
		return nil, fmt.Errorf("failed to get total posts: %w", err)
	}
	stats["total_posts"] = totalPosts

	var trackedIdentities int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM identities WHERE active = true").Scan(&trackedIdentities)
	if err != nil {
		return nil, fmt.Errorf("failed to get tracked identities: %w", err)
	}
	stats["tracked_identities"] = trackedIdentities

	var avgViews sql.NullFloat64
	err = db.conn.QueryRow(`
        SELECT AVG(views) FROM posts
        WHERE views IS NOT NULL AND scraped_at >= NOW() - INTERVAL '7 days'
    `).Scan(&avgViews)
	if err != nil {
		return nil, fmt.Errorf("failed to get average views: %w", err)
	}
	if avgViews.Valid {
		stats["average_views_7d"] = avgViews.Float64
	} else {
		stats["average_views_7d"] = 0
	}

	var lastScraped sql.NullString
	err = db.conn.QueryRow("SELECT MAX(scraped_at)::text FROM posts").Scan(&lastScraped)
	if err != nil {
		return nil, fmt.Errorf("failed to get last scraped time: %w", err)
	}
	if lastScraped.Valid {
		stats["last_scraped_at"] = lastScraped.String
	} else {
		stats["last_scraped_at"] = "Never"
	}

	rows, err := db.conn.Query(`
        SELECT platform, COUNT(*) FROM posts GROUP BY platform`)
	if err != nil {
		return nil, fmt.Errorf("failed to get posts by platform: %w", err)
	}
	defer rows.Close()

	postsByPlatform := make(map[string]int)
	for rows.Next() {
		var platform string
		var count int
		if err := rows.Scan(&platform, &count); err != nil {
			continue
		}
		postsByPlatform[platform] = count
	}
	stats["posts_by_platform"] = postsByPlatform

	return stats, nil
}

// Ping checks if the database connection is alive.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func scanPosts(rows *sql.Rows) ([]types.Post, error) {
	var posts []types.Post
	for rows.Next() {
		var post types.Post
		var posted sql.NullTime
		var views sql.NullInt64
		err := rows.Scan(
			&post.Username, &post.Platform, &post.PostLink,
			&posted, &post.Likes, &post.Comments, &views,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		if posted.Valid {
			post.PostedDate = posted.Time
		}
		if views.Valid {
			post.Views = &views.Int64
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
