package continuity

import (
	"context"
	"fmt"

	"github.com/jo-hoe/goseam/internal/common"
)

// AuthorizeSection checks that userID owns the page of a persisted section.
// Unsaved sections have no owner yet and are accepted for any known user.
func (s *Service) AuthorizeSection(ctx context.Context, userID, rawSectionID string) error {
	if userID == "" {
		return common.Unauthorized("missing user identity")
	}
	sectionID, ok := ParseSectionID(rawSectionID)
	if !ok {
		return nil
	}
	section, err := s.loadSection(ctx, sectionID)
	if err != nil {
		return err
	}
	page, err := s.db.GetPage(ctx, section.PageID)
	if err != nil {
		return storeError(err, "page %d", section.PageID)
	}
	if page.OwnerID != userID {
		return common.Forbidden("section %d belongs to another user", sectionID)
	}
	return nil
}

// AuthorizeSections applies AuthorizeSection to every id.
func (s *Service) AuthorizeSections(ctx context.Context, userID string, sectionIDs ...int64) error {
	if userID == "" {
		return common.Unauthorized("missing user identity")
	}
	for _, id := range sectionIDs {
		if err := s.AuthorizeSection(ctx, userID, fmt.Sprint(id)); err != nil {
			return err
		}
	}
	return nil
}
