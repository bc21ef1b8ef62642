package file

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/ragline/internal/core/domain"
)

// chatbotFile is the on-disk shape of a chatbot definitions file:
//
//	chatbots:
//	  - name: Support
//	    persona: You are the support assistant.
//	    tone: friendly
type chatbotFile struct {
	Chatbots []domain.Chatbot `yaml:"chatbots"`
}

// LoadChatbots reads chatbot definitions from a YAML file.
// Every entry needs a name; names must be unique within the file.
func LoadChatbots(path string) ([]domain.Chatbot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chatbots file: %w", err)
	}
	return ParseChatbots(data)
}

// ParseChatbots decodes chatbot definitions from YAML bytes.
func ParseChatbots(data []byte) ([]domain.Chatbot, error) {
	var file chatbotFile
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: parse chatbots: %v", domain.ErrInvalidInput, err)
	}

	seen := make(map[string]bool, len(file.Chatbots))
	for i, bot := range file.Chatbots {
		name := strings.TrimSpace(bot.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: chatbot %d has no name", domain.ErrInvalidInput, i)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate chatbot name %q", domain.ErrInvalidInput, name)
		}
		seen[name] = true
		file.Chatbots[i].Name = name
	}
	return file.Chatbots, nil
}
