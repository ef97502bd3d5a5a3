package service

import (
	"context"
	"strings"

	"pktracker/internal/repository"
)

// AdminList is the management roster of one group.
type AdminList struct {
	SuperAdmins []string `json:"super_admins"`
	Admins      []string `json:"admins"`
}

// AdminService answers who may manage a group's tasks. Super admins come from
// configuration and hold rights in every group.
type AdminService struct {
	admins *repository.AdminRepository
	super  map[string]bool
	order  []string
}

func NewAdminService(admins *repository.AdminRepository, superAdmins []string) *AdminService {
	s := &AdminService{admins: admins, super: make(map[string]bool)}
	for _, id := range superAdmins {
		id = strings.TrimSpace(id)
		if id == "" || s.super[id] {
			continue
		}
		s.super[id] = true
		s.order = append(s.order, id)
	}
	return s
}

func (s *AdminService) IsSuperAdmin(userID string) bool {
	return s.super[userID]
}

// IsAdmin reports whether userID may run admin commands in groupID.
func (s *AdminService) IsAdmin(ctx context.Context, groupID, userID string) (bool, error) {
	if s.super[userID] {
		return true, nil
	}
	ok, err := s.admins.Exists(ctx, groupID, userID)
	if err != nil {
		return false, storeErr("admin lookup", err)
	}
	return ok, nil
}

// AddAdmin grants userID admin rights in groupID. Only super admins may call it.
func (s *AdminService) AddAdmin(ctx context.Context, operatorID, groupID, userID string) error {
	if err := s.checkOperator(operatorID, groupID, userID); err != nil {
		return err
	}
	if s.super[userID] {
		return ErrAlreadyAdmin
	}
	added, err := s.admins.Add(ctx, groupID, userID)
	if err != nil {
		return storeErr("add admin", err)
	}
	if !added {
		return ErrAlreadyAdmin
	}
	return nil
}

// RemoveAdmin revokes userID's admin rights in groupID. Super admins cannot be removed.
func (s *AdminService) RemoveAdmin(ctx context.Context, operatorID, groupID, userID string) error {
	if err := s.checkOperator(operatorID, groupID, userID); err != nil {
		return err
	}
	if s.super[userID] {
		return ErrPermissionDenied
	}
	removed, err := s.admins.Remove(ctx, groupID, userID)
	if err != nil {
		return storeErr("remove admin", err)
	}
	if !removed {
		return ErrNotAdmin
	}
	return nil
}

func (s *AdminService) ListAdmins(ctx context.Context, groupID string) (*AdminList, error) {
	rows, err := s.admins.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, storeErr("list admins", err)
	}
	list := &AdminList{SuperAdmins: append([]string(nil), s.order...)}
	for _, a := range rows {
		if !s.super[a.UserID] {
			list.Admins = append(list.Admins, a.UserID)
		}
	}
	return list, nil
}

func (s *AdminService) checkOperator(operatorID, groupID, userID string) error {
	if groupID == "" || strings.TrimSpace(userID) == "" {
		return invalidParam("group and user are required")
	}
	if !s.super[operatorID] {
		return ErrPermissionDenied
	}
	return nil
}
