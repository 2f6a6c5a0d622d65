package domain

// Direction is the side of a trade attempt against the bonding curve.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// String returns the string representation of Direction.
func (d Direction) String() string {
	return string(d)
}

// IsValid checks if the direction is a valid value.
func (d Direction) IsValid() bool {
	return d == DirectionBuy || d == DirectionSell
}

// Opposite returns the other side of the trade.
func (d Direction) Opposite() Direction {
	if d == DirectionBuy {
		return DirectionSell
	}
	return DirectionBuy
}

// VerificationTier is the assurance level of a user's humanness claim.
// Issued by the identity provider, only consumed here.
type VerificationTier string

const (
	TierDevice VerificationTier = "device" // lowest assurance
	TierPhone  VerificationTier = "phone"
	TierOrb    VerificationTier = "orb" // highest assurance
)

// String returns the string representation of VerificationTier.
func (t VerificationTier) String() string {
	return string(t)
}

// IsValid checks if the tier is a valid value.
func (t VerificationTier) IsValid() bool {
	return t == TierDevice || t == TierPhone || t == TierOrb
}
