package presencecount

import "os"

func GetHubUrl() string {
	return os.Getenv("PRESENCE_HUB_URL")
}

func GetIdentityUrl() string {
	return os.Getenv("PRESENCE_IDENTITY_URL")
}
