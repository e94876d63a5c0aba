package models

const (
	RoleGuest   = "GUEST"
	RoleValet   = "VALET"
	RoleManager = "MANAGER"
)
