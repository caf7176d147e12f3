package core

import "strings"

// VehicleProfile is the internal vehicle class of a pursued entity.
type VehicleProfile string

const (
	ProfileCar        VehicleProfile = "car"
	ProfileTruck      VehicleProfile = "truck"
	ProfileVan        VehicleProfile = "van"
	ProfileMotorcycle VehicleProfile = "motorcycle"
	ProfileScooter    VehicleProfile = "scooter"
	ProfileBicycle    VehicleProfile = "bicycle"
	ProfilePedestrian VehicleProfile = "pedestrian"
)

// ParseProfile normalizes a profile name. Unknown names are returned as-is
// so callers can apply their own default.
func ParseProfile(s string) VehicleProfile {
	return VehicleProfile(strings.ToLower(strings.TrimSpace(s)))
}

// TwoWheeled reports whether the profile can filter through congested traffic.
func (p VehicleProfile) TwoWheeled() bool {
	switch p {
	case ProfileMotorcycle, ProfileScooter, ProfileBicycle:
		return true
	}
	return false
}
