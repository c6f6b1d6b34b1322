package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowSecretGuide writes step-by-step instructions for moving API keys
// out of config.yaml and into the secret store.
func ShowSecretGuide(w io.Writer) {
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w, "STORING API KEYS")
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "STEP 1: Store each key under a name")
	fmt.Fprintln(w, "   igsync secret set airtable_api_key")
	fmt.Fprintln(w, "   igsync secret set rapidapi_key")
	fmt.Fprintln(w, "   The value is read without echo.")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "STEP 2: Reference the names from config.yaml")
	fmt.Fprintln(w, "   airtable:")
	fmt.Fprintln(w, "     api_key: ${secret:airtable_api_key}")
	fmt.Fprintln(w, "   instagram:")
	fmt.Fprintln(w, "     api_key: ${secret:rapidapi_key}")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "STEP 3: Check the result")
	fmt.Fprintln(w, "   igsync config validate")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "WHERE SECRETS LIVE (first match wins):")
	fmt.Fprintln(w, "   1. the system keyring, when one is available")
	fmt.Fprintln(w, "   2. secrets.enc in the igsync config directory, AES-GCM encrypted")
	fmt.Fprintf(w, "      (passphrase from %s or a generated .passphrase file)\n", PassphraseEnv)
	fmt.Fprintf(w, "   3. %sNAME environment variables (read-only)\n", envPrefix)
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("=", 72))
}
