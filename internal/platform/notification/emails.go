package notification

import "fmt"

// MagicLinkEmail builds the sign-in email sent to a patient. The link embeds
// a one-time token valid for 24 hours.
func MagicLinkEmail(frontendURL, token, firstName string) (subject, textBody, htmlBody string) {
	link := fmt.Sprintf("%s/auth/verify?token=%s", frontendURL, token)

	subject = "Connexion à Julia App"

	textBody = fmt.Sprintf(
		"Bonjour %s,\n\n"+
			"Cliquez sur le lien suivant pour vous connecter à Julia App :\n\n"+
			"%s\n\n"+
			"Ce lien est valable 24 heures. Si vous n'avez pas demandé cette connexion, ignorez cet email.\n\n"+
			"L'équipe Julia",
		firstName, link)

	htmlBody = fmt.Sprintf(
		`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">`+
			`<h2 style="color: #4A90D9;">Julia App</h2>`+
			`<p>Bonjour %s,</p>`+
			`<p>Cliquez sur le bouton ci-dessous pour vous connecter à Julia App :</p>`+
			`<p style="text-align: center;">`+
			`<a href="%s" style="background-color: #4A90D9; color: #ffffff; padding: 12px 24px; `+
			`text-decoration: none; border-radius: 6px; display: inline-block;">Se connecter</a>`+
			`</p>`+
			`<p>Ce lien est valable 24 heures. Si vous n'avez pas demandé cette connexion, ignorez cet email.</p>`+
			`<p>L'équipe Julia</p>`+
			`</div>`,
		firstName, link)

	return subject, textBody, htmlBody
}

// WelcomeEmail builds the email sent when a professional registers a patient.
func WelcomeEmail(firstName, professionalName string) (subject, textBody, htmlBody string) {
	subject = "Bienvenue sur Julia App"

	textBody = fmt.Sprintf(
		"Bonjour %s,\n\n"+
			"%s vous a inscrit(e) sur Julia App, votre espace d'accompagnement entre les séances.\n\n"+
			"Vous recevrez un lien de connexion par email à chaque fois que vous souhaiterez accéder à l'application.\n\n"+
			"L'équipe Julia",
		firstName, professionalName)

	htmlBody = fmt.Sprintf(
		`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">`+
			`<h2 style="color: #4A90D9;">Bienvenue sur Julia App</h2>`+
			`<p>Bonjour %s,</p>`+
			`<p>%s vous a inscrit(e) sur Julia App, votre espace d'accompagnement entre les séances.</p>`+
			`<p>Vous recevrez un lien de connexion par email à chaque fois que vous souhaiterez accéder à l'application.</p>`+
			`<p>L'équipe Julia</p>`+
			`</div>`,
		firstName, professionalName)

	return subject, textBody, htmlBody
}
