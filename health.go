package bulwark

// CheckAccountHealth applies the account health rules in a fixed order:
// deleted, then not verified, then disabled. A deleted account never
// reports as unverified.
func CheckAccountHealth(account *Account) error {
	if account == nil {
		return ErrAccountNotFound
	}

	if account.IsDeleted {
		return Fail(ErrAccountDeleted, nil, nil)
	}

	if !account.IsVerified {
		return Fail(ErrAccountNotVerified, nil, nil)
	}

	if !account.IsEnabled {
		return Fail(ErrAccountDisabled, nil, nil)
	}

	return nil
}
