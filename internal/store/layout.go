package store

import (
	"strconv"
	"strings"

	"github.com/benvon/questlog/internal/models"
	"github.com/google/uuid"
)

const (
	// CatalogRoot holds the global task templates, keyed by task id
	CatalogRoot = "tasks"
	// UsersRoot holds every user's progress subtree, keyed by user id
	UsersRoot = "users"
)

// UserPath returns users/{uid} extended by the given raw segments
func UserPath(userID uuid.UUID, segments ...string) string {
	return Join(append([]string{UsersRoot, userID.String()}, segments...)...)
}

// UserFromPath extracts the user id from a path under users/{uid}
func UserFromPath(path string) (uuid.UUID, bool) {
	parts := strings.Split(Clean(path), "/")
	if len(parts) < 2 || parts[0] != UsersRoot {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(Unkey(parts[1]))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// CatalogTaskPath returns tasks/{taskId}
func CatalogTaskPath(taskID string) string {
	return Join(CatalogRoot, taskID)
}

// ArchivePath returns users/{uid}/weekArchives/{weekNumber}
func ArchivePath(userID uuid.UUID, weekNumber int) string {
	return UserPath(userID, "weekArchives", strconv.Itoa(weekNumber))
}

// DocumentUpdates returns the multi-path update writing every field of doc under
// users/{uid}. Week archives are left untouched.
func DocumentUpdates(userID uuid.UUID, doc *models.ProgressDocument) map[string]any {
	updates := map[string]any{
		UserPath(userID, "tasks"):          doc.Tasks,
		UserPath(userID, "completedTasks"): doc.CompletedTasks,
		UserPath(userID, "achievements"):   doc.Achievements,
		UserPath(userID, "rankedTasks"):    doc.RankedTasks,
		UserPath(userID, "weekCount"):      doc.WeekCount,
		UserPath(userID, "lastUpdated"):    doc.LastUpdated,
	}
	if doc.Points != nil {
		updates[UserPath(userID, "points")] = doc.Points
	}
	if doc.MonthlyPoints != nil {
		updates[UserPath(userID, "monthlyPoints")] = doc.MonthlyPoints
	}
	if doc.XP != nil {
		updates[UserPath(userID, "xp")] = doc.XP
	}
	return updates
}

// WeeklyBoundaryUpdates is DocumentUpdates plus the new week archive, written together
// so a reader never observes a partial reset.
func WeeklyBoundaryUpdates(userID uuid.UUID, doc *models.ProgressDocument, archive *models.WeekArchive) map[string]any {
	updates := DocumentUpdates(userID, doc)
	if archive != nil {
		updates[ArchivePath(userID, archive.WeekNumber)] = archive
	}
	return updates
}
