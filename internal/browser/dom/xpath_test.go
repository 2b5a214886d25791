// internal/browser/dom/xpath_test.go
package dom_test

import (
	"strings"
	"testing"

	"github.com/antchfx/htmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/loginfill/internal/browser/dom"
)

const xpathHTML = `
	<html>
	<body>
		<div id="header"><h1>Sign in</h1></div>
		<form class="login">
			<input name="user"><input name="pass" type="password">
		</form>
		<form class="login"><input name="otp"></form>
		<ul><li>a</li><li id="special">b</li></ul>
	</body>
	</html>
	`

func TestGenerateUniqueXPath(t *testing.T) {
	doc, err := htmlquery.Parse(strings.NewReader(xpathHTML))
	require.NoError(t, err)

	tests := []struct {
		name          string
		targetXPath   string
		expectedXPath string
	}{
		{"Body", "//body", "/html[1]/body[1]"},
		{"Element with ID", "//div[@id='header']", `//*[@id='header']`},
		{"Child of ID element", "//h1", `//*[@id='header']/h1[1]`},
		{"Second input of first form", "//input[@name='pass']", "/html[1]/body[1]/form[1]/input[2]"},
		{"Input of second form", "//input[@name='otp']", "/html[1]/body[1]/form[2]/input[1]"},
		{"ID shortcut", "//li[@id='special']", `//*[@id='special']`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := htmlquery.FindOne(doc, tt.targetXPath)
			require.NotNil(t, target, "setup: %s matched nothing", tt.targetXPath)

			got := dom.GenerateUniqueXPath(target)
			assert.Equal(t, tt.expectedXPath, got)
			assert.Equal(t, target, htmlquery.FindOne(doc, got), "generated xpath must select the same node")
		})
	}
}

func TestGenerateUniqueXPath_Nil(t *testing.T) {
	assert.Equal(t, "", dom.GenerateUniqueXPath(nil))
}
