package services

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"

	"github.com/talentmix/talentmix/internal/config"
	"github.com/talentmix/talentmix/pkg/models"
)

// DatabaseQuerier interface for database operations
type DatabaseQuerier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// Snapshot is an immutable view of the catalog plus every index the
// ranking core needs. A reload builds a fresh snapshot and swaps it in
// atomically; in-flight requests keep reading the old one.
type Snapshot struct {
	Videos    []*models.Video
	VideoByID map[int64]*models.Video
	Flows     []*models.Flow
	FlowByID  map[int64]*models.Flow

	InteractionsByUser map[int64][]models.Interaction

	SkillSets     map[int64]map[string]struct{}
	KnowledgeSets map[int64]map[string]struct{}
	ToolSets      map[int64]map[string]struct{}
	LanguageSets  map[int64]map[string]struct{}
	SkillCounts   map[string]int

	SocialGraph     map[int64]map[int64]struct{}
	SocialInfluence map[int64]float64

	Blacklist map[string]struct{}

	LoadedAt time.Time
}

// DataService loads catalog snapshots from PostgreSQL and exposes the
// current one. Load is safe to call concurrently with readers.
type DataService struct {
	db       DatabaseQuerier
	config   *config.Config
	logger   *logrus.Logger
	features *FeatureComputer

	current atomic.Pointer[Snapshot]
}

func NewDataService(
	db DatabaseQuerier,
	cfg *config.Config,
	features *FeatureComputer,
	logger *logrus.Logger,
) *DataService {
	return &DataService{
		db:       db,
		config:   cfg,
		logger:   logger,
		features: features,
	}
}

// Snapshot returns the current catalog snapshot, or nil before the first
// successful Load.
func (ds *DataService) Snapshot() *Snapshot {
	return ds.current.Load()
}

// Load builds a fresh snapshot from the store and swaps it in. On error
// the previous snapshot stays active.
func (ds *DataService) Load(ctx context.Context) error {
	start := time.Now()

	blacklist, err := ds.loadBlacklist()
	if err != nil {
		ds.logger.Warn("Failed to load blacklist, continuing without it", "error", err)
		blacklist = map[string]struct{}{}
	}

	snap := &Snapshot{
		VideoByID:          make(map[int64]*models.Video),
		FlowByID:           make(map[int64]*models.Flow),
		InteractionsByUser: make(map[int64][]models.Interaction),
		SkillSets:          make(map[int64]map[string]struct{}),
		KnowledgeSets:      make(map[int64]map[string]struct{}),
		ToolSets:           make(map[int64]map[string]struct{}),
		LanguageSets:       make(map[int64]map[string]struct{}),
		SkillCounts:        make(map[string]int),
		SocialGraph:        make(map[int64]map[int64]struct{}),
		SocialInfluence:    make(map[int64]float64),
		Blacklist:          blacklist,
		LoadedAt:           time.Now(),
	}

	if err := ds.loadVideos(ctx, snap); err != nil {
		return fmt.Errorf("failed to load videos: %w", err)
	}
	if err := ds.loadFlows(ctx, snap); err != nil {
		return fmt.Errorf("failed to load flows: %w", err)
	}
	if err := ds.loadInteractions(ctx, snap); err != nil {
		return fmt.Errorf("failed to load interactions: %w", err)
	}
	if err := ds.loadConnections(ctx, snap); err != nil {
		return fmt.Errorf("failed to load connections: %w", err)
	}

	ds.features.ComputeScores(snap)

	ds.current.Store(snap)

	ds.logger.Info("Catalog snapshot loaded",
		"videos", len(snap.Videos),
		"flows", len(snap.Flows),
		"users_with_history", len(snap.InteractionsByUser),
		"duration", time.Since(start))

	return nil
}

func (ds *DataService) loadVideos(ctx context.Context, snap *Snapshot) error {
	query := `
		SELECT
			r.id,
			r.user_id,
			COALESCE(r.name, '') as name,
			COALESCE(r.slug, '') as slug,
			r.video,
			COALESCE(r.image, '') as image,
			COALESCE(r.description, '') as description,
			COALESCE(r.skills, '[]') as skills,
			COALESCE(r.knowledges, '[]') as knowledges,
			COALESCE(r.tools, '[]') as tools,
			COALESCE(r.languages, '[]') as languages,
			r.created_at,
			COALESCE(u.name, '') as creator_name,
			COALESCE(u.slug, '') as creator_slug,
			COALESCE(u.avatar, '') as creator_avatar,
			COALESCE(NULLIF(TRIM(u.city), ''), '') as creator_city,
			COALESCE(NULLIF(TRIM(u.country), ''), '') as creator_country,
			LEAST(COALESCE(tf.avg_rating, 0), 5.0) as avg_rating,
			COALESCE(tf.rating_count, 0) as rating_count,
			COALESCE(m.match_count, 0) as connection_count,
			COALESCE(l.like_count, 0) as like_count,
			COALESCE(e.exhibited_count, 0) as exhibited_count,
			COALESCE(vc.view_count, 0) as views
		FROM resumes r
		JOIN users u ON r.user_id = u.id
		LEFT JOIN (
			SELECT model_id,
			       AVG(LEAST(value, 5)) as avg_rating,
			       COUNT(*) as rating_count
			FROM team_feedbacks
			WHERE type = 'ranking_resume' AND value > 0
			GROUP BY model_id
		) tf ON tf.model_id = r.id
		LEFT JOIN (
			SELECT model_id, COUNT(*) as match_count
			FROM matches
			WHERE status = 'accepted'
			GROUP BY model_id
		) m ON m.model_id = r.id
		LEFT JOIN (
			SELECT model_id, COUNT(*) as like_count
			FROM likes
			WHERE type = 'save'
			GROUP BY model_id
		) l ON l.model_id = r.id
		LEFT JOIN (
			SELECT resume_id, COUNT(*) as exhibited_count
			FROM resumes_exhibited
			GROUP BY resume_id
		) e ON e.resume_id = r.id
		LEFT JOIN (
			SELECT model_id, COUNT(*) as view_count
			FROM views
			WHERE model_type = 'resume'
			GROUP BY model_id
		) vc ON vc.model_id = r.id
		WHERE r.deleted_at IS NULL
		  AND r.status = 'send'
		  AND r.video IS NOT NULL
		  AND u.deleted_at IS NULL
		  AND r.created_at >= NOW() - INTERVAL '360 days'
		  AND LOWER(r.video) NOT LIKE '%test%'
		  AND LOWER(COALESCE(r.description, '')) NOT LIKE '%test%'
	`

	rows, err := ds.db.Query(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	now := time.Now()
	for rows.Next() {
		var v models.Video
		var skillsJSON, knowledgesJSON, toolsJSON, languagesJSON string
		var creatorCity, creatorCountry string

		err := rows.Scan(
			&v.ID, &v.CreatorID, &v.Name, &v.Slug, &v.VideoURL, &v.Image,
			&v.Description, &skillsJSON, &knowledgesJSON, &toolsJSON,
			&languagesJSON, &v.CreatedAt, &v.CreatorName, &v.CreatorSlug,
			&v.CreatorAvatar, &creatorCity, &creatorCountry,
			&v.AvgRating, &v.RatingCount, &v.ConnectionCount,
			&v.LikeCount, &v.ExhibitedCount, &v.Views,
		)
		if err != nil {
			ds.logger.Error("Failed to scan video row", "error", err)
			continue
		}

		if _, blocked := snap.Blacklist[v.VideoURL]; blocked {
			continue
		}

		v.City = normalizeCity(creatorCity, creatorCountry)
		v.DaysSinceCreation = math.Max(0, now.Sub(v.CreatedAt).Hours()/24)

		v.Skills = parseTagList(skillsJSON, ds.config.Recommendation.MaxSkillsPerVideo)
		v.Knowledges = parseTagList(knowledgesJSON, ds.config.Recommendation.MaxTagsPerVideo)
		v.Tools = parseTagList(toolsJSON, ds.config.Recommendation.MaxTagsPerVideo)
		v.Languages = parseTagList(languagesJSON, ds.config.Recommendation.MaxTagsPerVideo)

		snap.Videos = append(snap.Videos, &v)
		snap.VideoByID[v.ID] = &v

		snap.SkillSets[v.ID] = toSet(v.Skills)
		snap.KnowledgeSets[v.ID] = toSet(v.Knowledges)
		snap.ToolSets[v.ID] = toSet(v.Tools)
		snap.LanguageSets[v.ID] = toSet(v.Languages)
		for _, skill := range v.Skills {
			snap.SkillCounts[skill]++
		}
	}

	return rows.Err()
}

func (ds *DataService) loadFlows(ctx context.Context, snap *Snapshot) error {
	query := `
		SELECT
			c.id,
			c.user_id,
			COALESCE(c.name, '') as name,
			COALESCE(c.slug, '') as slug,
			c.video,
			COALESCE(c.image, '') as image,
			COALESCE(c.description, '') as description,
			COALESCE(c.talent_type, '') as talent_type,
			COALESCE(c.interest_areas, '[]') as interest_areas,
			COALESCE(c.type_objectives, '[]') as type_objectives,
			c.created_at,
			COALESCE(u.name, '') as creator_name,
			COALESCE(u.slug, '') as creator_slug,
			COALESCE(NULLIF(TRIM(u.city), ''), '') as creator_city,
			COALESCE(NULLIF(TRIM(u.country), ''), '') as creator_country
		FROM (
			SELECT *,
			       ROW_NUMBER() OVER (PARTITION BY video ORDER BY created_at DESC) as rn
			FROM challenges
			WHERE deleted_at IS NULL
			  AND status = 'published'
			  AND video IS NOT NULL
			  AND (created_at >= NOW() - INTERVAL '90 days'
			       OR updated_at >= NOW() - INTERVAL '90 days')
			  AND name NOT IN ('test', 'prueba')
		) c
		JOIN users u ON c.user_id = u.id
		WHERE c.rn = 1
		ORDER BY c.created_at DESC
	`

	rows, err := ds.db.Query(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	now := time.Now()
	for rows.Next() {
		var f models.Flow
		var interestJSON, objectivesJSON string
		var creatorCity, creatorCountry string

		err := rows.Scan(
			&f.ID, &f.CreatorID, &f.Name, &f.Slug, &f.VideoURL, &f.Image,
			&f.Description, &f.TalentType, &interestJSON, &objectivesJSON,
			&f.CreatedAt, &f.CreatorName, &f.CreatorSlug,
			&creatorCity, &creatorCountry,
		)
		if err != nil {
			ds.logger.Error("Failed to scan flow row", "error", err)
			continue
		}

		if _, blocked := snap.Blacklist[f.VideoURL]; blocked {
			continue
		}

		f.City = normalizeCity(creatorCity, creatorCountry)
		f.DaysSinceCreation = math.Max(0, now.Sub(f.CreatedAt).Hours()/24)
		f.InterestAreas = parseTagList(interestJSON, ds.config.Recommendation.MaxTagsPerVideo)
		f.TypeObjectives = parseTagList(objectivesJSON, ds.config.Recommendation.MaxTagsPerVideo)

		snap.Flows = append(snap.Flows, &f)
		snap.FlowByID[f.ID] = &f
	}

	return rows.Err()
}

func (ds *DataService) loadInteractions(ctx context.Context, snap *Snapshot) error {
	query := `
		SELECT user_id, model_id as video_id,
		       LEAST(value, 5)::float8 as rating,
		       created_at, 'rating' as interaction_type
		FROM team_feedbacks
		WHERE type = 'ranking_resume' AND value > 0 AND user_id IS NOT NULL
		  AND created_at >= NOW() - INTERVAL '90 days'
		UNION ALL
		SELECT user_id, model_id, 3.0, created_at, 'save'
		FROM likes
		WHERE type = 'save' AND user_id IS NOT NULL
		  AND created_at >= NOW() - INTERVAL '90 days'
		UNION ALL
		SELECT user_id, model_id, 4.0, created_at, 'match'
		FROM matches
		WHERE status = 'accepted' AND user_id IS NOT NULL
		  AND created_at >= NOW() - INTERVAL '90 days'
		UNION ALL
		SELECT causer_id, subject_id, 2.0, created_at, 'view'
		FROM activity_log
		WHERE description LIKE '%video%view%'
		  AND causer_id IS NOT NULL AND subject_id IS NOT NULL
		  AND created_at >= NOW() - INTERVAL '30 days'
		ORDER BY created_at
	`

	rows, err := ds.db.Query(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var it models.Interaction
		if err := rows.Scan(&it.UserID, &it.VideoID, &it.Rating, &it.CreatedAt, &it.Type); err != nil {
			ds.logger.Error("Failed to scan interaction row", "error", err)
			continue
		}
		snap.InteractionsByUser[it.UserID] = append(snap.InteractionsByUser[it.UserID], it)
		count++
	}

	ds.logger.Info("Interactions loaded", "count", count)
	return rows.Err()
}

func (ds *DataService) loadConnections(ctx context.Context, snap *Snapshot) error {
	query := `
		SELECT from_id as user_id, to_id as connected_user_id
		FROM user_connections
		WHERE status = 'accepted'
		  AND created_at >= NOW() - INTERVAL '90 days'
	`

	rows, err := ds.db.Query(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var c models.Connection
		if err := rows.Scan(&c.UserID, &c.ConnectedUserID); err != nil {
			ds.logger.Error("Failed to scan connection row", "error", err)
			continue
		}
		if snap.SocialGraph[c.UserID] == nil {
			snap.SocialGraph[c.UserID] = make(map[int64]struct{})
		}
		snap.SocialGraph[c.UserID][c.ConnectedUserID] = struct{}{}
	}

	for userID, connections := range snap.SocialGraph {
		snap.SocialInfluence[userID] = math.Log1p(float64(len(connections))) / 10.0
	}

	return rows.Err()
}

// SeenFlows returns the flow IDs a user has already viewed, from the
// activity log. Errors degrade to an empty set so feeds still compose.
func (ds *DataService) SeenFlows(ctx context.Context, userID int64) map[int64]struct{} {
	seen := make(map[int64]struct{})

	query := `
		SELECT DISTINCT subject_id
		FROM activity_log
		WHERE causer_id = $1
		  AND log_name LIKE '%flow%'
		  AND subject_id IS NOT NULL
	`

	rows, err := ds.db.Query(ctx, query, userID)
	if err != nil {
		ds.logger.Warn("Failed to query seen flows", "user_id", userID, "error", err)
		return seen
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			continue
		}
		seen[id] = struct{}{}
	}

	return seen
}

func (ds *DataService) loadBlacklist() (map[string]struct{}, error) {
	blacklist := make(map[string]struct{})

	path := ds.config.Database.BlacklistFile
	if path == "" {
		return blacklist, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return blacklist, nil
		}
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	for _, record := range records {
		if len(record) == 0 {
			continue
		}
		url := strings.TrimSpace(record[0])
		if url != "" && url != "url" {
			blacklist[url] = struct{}{}
		}
	}

	ds.logger.Info("Blacklist loaded", "entries", len(blacklist))
	return blacklist, nil
}

// cityAliases folds the spelling variants that show up in profile data
// onto canonical city names.
var cityAliases = map[string]string{
	"Bogotá":           "Bogotá",
	"Bogotá D.C.":      "Bogotá",
	"Bogota":           "Bogotá",
	"bogota":           "Bogotá",
	"Medellin":         "Medellín",
	"medellin":         "Medellín",
	"Cali":             "Cali",
	"cali":             "Cali",
	"Barranquilla":     "Barranquilla",
	"barranquilla":     "Barranquilla",
	"Bucaramanga":      "Bucaramanga",
	"Distrito Federal": "CDMX",
	"Ciudad de México": "CDMX",
	"Nuevo Leon":       "Monterrey",
	"Nuevo León":       "Monterrey",
}

// normalizeCity canonicalizes a city name. Empty cities fall back to
// "Other-{country}" or "Unknown".
func normalizeCity(city, country string) string {
	city = strings.TrimSpace(norm.NFC.String(city))
	if city == "" {
		if country = strings.TrimSpace(country); country != "" {
			return "Other-" + country
		}
		return "Unknown"
	}
	if canonical, ok := cityAliases[city]; ok {
		return canonical
	}
	return city
}

// parseTagList decodes a JSON string array, keeping at most max entries.
// Malformed payloads yield an empty list.
func parseTagList(raw string, max int) []string {
	if raw == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil
	}
	if len(tags) > max {
		tags = tags[:max]
	}
	result := tags[:0]
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			result = append(result, t)
		}
	}
	return result
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}
