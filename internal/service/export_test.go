package service

// SetPasswordHasher replaces the bcrypt hash function of s.
func (s *PortalService) SetPasswordHasher(fn func(password []byte, cost int) ([]byte, error)) {
	s.hash = fn
}
