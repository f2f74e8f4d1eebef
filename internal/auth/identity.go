package auth

// UserIdentity is the immutable snapshot of the signed-in user published to the application.
type UserIdentity struct {
	UID         string
	PhoneNumber string
	DisplayName string
}

// IdentityFromProvider maps the provider's identity to the domain snapshot.
func IdentityFromProvider(p ProviderIdentity) UserIdentity {
	return UserIdentity{
		UID:         p.UID,
		PhoneNumber: p.PhoneNumber,
		DisplayName: p.DisplayName,
	}
}

// ProviderIdentity returns the provider view of the identity, used when calling back into the provider.
func (u UserIdentity) ProviderIdentity() ProviderIdentity {
	return ProviderIdentity{
		UID:         u.UID,
		PhoneNumber: u.PhoneNumber,
		DisplayName: u.DisplayName,
	}
}
